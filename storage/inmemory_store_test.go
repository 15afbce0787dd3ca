package storage_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"

	"github.com/luma/samplecast/protocol"
	"github.com/luma/samplecast/sample"
	"github.com/luma/samplecast/storage"
)

var _ = Describe("storage / InmemoryStore", func() {
	var (
		ctx    context.Context
		store  *storage.InmemoryStore
		key    sample.KeyHash
		writer = protocol.EntityID{0, 0, 1, 2}
	)

	data := func(seq int64, size int) *storage.Change {
		payload := sample.NewSerializedPayload(sample.CDR_LE, [2]byte{}, make([]byte, size))
		return &storage.Change{Instance: key, Writer: writer, Sequence: seq, Sample: sample.New(payload)}
	}

	dispose := func(seq int64, kind sample.ChangeKind) *storage.Change {
		return &storage.Change{
			Instance: key,
			Writer:   writer,
			Sequence: seq,
			Sample:   sample.NewDisposedByKeyHash(kind, key),
		}
	}

	field := func(path string) gjson.Result {
		record, err := store.Get(ctx, key)
		Expect(err).To(Succeed())
		return gjson.GetBytes(record, path)
	}

	BeforeEach(func() {
		ctx = context.Background()
		key = sample.ComputeKeyHash([]byte("instance-1"), false)
		store = storage.NewInmemoryStore(storage.Options{
			Shards:  4,
			History: storage.HistoryQoS{Depth: 2},
		})
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	Describe("Close()", func() {
		It("does not panic when closed twice", func() {
			Expect(func() { store.Close() }).NotTo(Panic())
			Expect(func() { store.Close() }).NotTo(Panic())
		})

		It("closes update channels", func() {
			updates := store.ListenToUpdates()
			Expect(store.Close()).To(Succeed())
			Eventually(updates).Should(BeClosed())
		})

		It("rejects changes once closed", func() {
			Expect(store.Close()).To(Succeed())
			_, err := store.Apply(ctx, data(1, 4))
			Expect(errors.Is(err, storage.ErrStoreClosed)).To(BeTrue())
		})
	})

	It("an empty store backs up to no instances", func() {
		value, err := store.Backup()
		Expect(err).To(Succeed())
		Expect(string(value)).To(Equal(`{"instances":[]}`))
	})

	Describe("Apply() / Get()", func() {
		It("creates an alive instance for a data sample", func() {
			update, err := store.Apply(ctx, data(1, 37))
			Expect(err).To(Succeed())
			Expect(update.Key).To(Equal(key))
			Expect(gjson.GetBytes(update.Value, "kind").String()).To(Equal("Data"))
			Expect(gjson.GetBytes(update.Value, "changeKind").String()).To(Equal("ALIVE"))
			Expect(gjson.GetBytes(update.Value, "payloadSize").Int()).To(Equal(int64(37)))
			Expect(gjson.GetBytes(update.Value, "writer").String()).To(Equal("00000102"))

			Expect(field("state").String()).To(Equal("alive"))
			Expect(field("samples").Int()).To(Equal(int64(1)))
			Expect(field("payloadBytes").Int()).To(Equal(int64(37)))
			Expect(field("lastSequence").Int()).To(Equal(int64(1)))
		})

		It("returns ErrInstanceNotFound for unknown instances", func() {
			_, err := store.Get(ctx, key)
			Expect(errors.Is(err, storage.ErrInstanceNotFound)).To(BeTrue())
		})

		It("keeps the last samples up to the history depth", func() {
			for seq := int64(1); seq <= 3; seq++ {
				_, err := store.Apply(ctx, data(seq, int(seq)))
				Expect(err).To(Succeed())
			}

			samples, err := store.Samples(ctx, key)
			Expect(err).To(Succeed())
			Expect(samples).To(HaveLen(2))
			Expect(samples[0].PayloadSize()).To(Equal(2))
			Expect(samples[1].PayloadSize()).To(Equal(3))

			Expect(field("payloadBytes").Int()).To(Equal(int64(5)))
		})

		It("drops samples that are not newer than the last one from the writer", func() {
			_, err := store.Apply(ctx, data(5, 1))
			Expect(err).To(Succeed())

			_, err = store.Apply(ctx, data(5, 1))
			Expect(errors.Is(err, storage.ErrDuplicateSample)).To(BeTrue())

			_, err = store.Apply(ctx, data(4, 1))
			Expect(errors.Is(err, storage.ErrDuplicateSample)).To(BeTrue())

			other := data(1, 1)
			other.Writer = protocol.EntityID{0, 0, 2, 2}
			_, err = store.Apply(ctx, other)
			Expect(err).To(Succeed())
		})

		It("disposes an instance and revives it with a new generation", func() {
			_, err := store.Apply(ctx, data(1, 4))
			Expect(err).To(Succeed())

			update, err := store.Apply(ctx, dispose(2, sample.NotAliveDisposed))
			Expect(err).To(Succeed())
			Expect(gjson.GetBytes(update.Value, "kind").String()).To(Equal("DisposeByKeyHash"))
			Expect(gjson.GetBytes(update.Value, "payloadSize").Int()).To(Equal(int64(16)))
			Expect(field("state").String()).To(Equal("disposed"))

			_, err = store.Apply(ctx, data(3, 4))
			Expect(err).To(Succeed())
			Expect(field("state").String()).To(Equal("alive"))
			Expect(field("disposedGeneration").Int()).To(Equal(int64(1)))
			Expect(field("noWritersGeneration").Int()).To(Equal(int64(0)))
		})

		It("unregisters an alive instance and revives it with a new generation", func() {
			_, err := store.Apply(ctx, data(1, 4))
			Expect(err).To(Succeed())

			_, err = store.Apply(ctx, dispose(2, sample.NotAliveUnregistered))
			Expect(err).To(Succeed())
			Expect(field("state").String()).To(Equal("unregistered"))
			Expect(field("lastChange").String()).To(Equal("NOT_ALIVE_UNREGISTERED"))

			_, err = store.Apply(ctx, data(3, 4))
			Expect(err).To(Succeed())
			Expect(field("noWritersGeneration").Int()).To(Equal(int64(1)))
		})

		It("keeps a disposed instance disposed when it is unregistered", func() {
			_, err := store.Apply(ctx, dispose(1, sample.NotAliveDisposed))
			Expect(err).To(Succeed())

			_, err = store.Apply(ctx, dispose(2, sample.NotAliveUnregistered))
			Expect(err).To(Succeed())
			Expect(field("state").String()).To(Equal("disposed"))
		})

		It("treats disposed and unregistered as disposed", func() {
			_, err := store.Apply(ctx, dispose(1, sample.NotAliveDisposedUnregistered))
			Expect(err).To(Succeed())
			Expect(field("state").String()).To(Equal("disposed"))
		})

		It("does not keep disposals as samples", func() {
			_, err := store.Apply(ctx, dispose(1, sample.NotAliveDisposed))
			Expect(err).To(Succeed())

			samples, err := store.Samples(ctx, key)
			Expect(err).To(Succeed())
			Expect(samples).To(BeEmpty())
		})

		It("sends on the update channel when changes are applied", func() {
			updateChan := store.ListenToUpdates()
			applied, err := store.Apply(ctx, data(1, 4))
			Expect(err).To(Succeed())

			var update *storage.Update
			Eventually(updateChan).Should(Receive(&update))
			Expect(update).To(Equal(applied))
		})

		It("stops sending to a channel once unlistened", func() {
			stopped := store.ListenToUpdates()
			kept := store.ListenToUpdates()

			store.Unlisten(stopped)
			Expect(stopped).To(BeClosed())

			_, err := store.Apply(ctx, data(1, 4))
			Expect(err).To(Succeed())
			Eventually(kept).Should(Receive())

			// Unlistening twice, or after Close, is harmless
			store.Unlisten(stopped)
			Expect(store.Close()).To(Succeed())
			Expect(func() { store.Unlisten(kept) }).NotTo(Panic())
		})
	})

	Describe("resource limits", func() {
		It("rejects new instances beyond max instances", func() {
			store = storage.NewInmemoryStore(storage.Options{MaxInstances: 1})

			_, err := store.Apply(ctx, data(1, 1))
			Expect(err).To(Succeed())

			other := data(1, 1)
			other.Instance = sample.ComputeKeyHash([]byte("instance-2"), false)
			_, err = store.Apply(ctx, other)
			Expect(errors.Is(err, storage.ErrInstanceLimit)).To(BeTrue())

			// Existing instances still take changes
			_, err = store.Apply(ctx, data(2, 1))
			Expect(err).To(Succeed())
		})

		It("rejects samples beyond max samples per instance when keeping all", func() {
			store = storage.NewInmemoryStore(storage.Options{
				History:               storage.HistoryQoS{KeepAll: true},
				MaxSamplesPerInstance: 2,
			})

			for seq := int64(1); seq <= 2; seq++ {
				_, err := store.Apply(ctx, data(seq, 1))
				Expect(err).To(Succeed())
			}

			_, err := store.Apply(ctx, data(3, 1))
			Expect(errors.Is(err, storage.ErrSampleLimit)).To(BeTrue())

			// Disposals are not samples
			_, err = store.Apply(ctx, dispose(4, sample.NotAliveDisposed))
			Expect(err).To(Succeed())
		})
	})

	Describe("Backup() / Restore()", func() {
		It("restores instance states from a backup", func() {
			_, err := store.Apply(ctx, data(1, 4))
			Expect(err).To(Succeed())
			_, err = store.Apply(ctx, dispose(2, sample.NotAliveDisposed))
			Expect(err).To(Succeed())

			backup, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(gjson.GetBytes(backup, "instances.#").Int()).To(Equal(int64(1)))
			Expect(gjson.GetBytes(backup, "instances.0.keyHash").String()).To(Equal(key.String()))

			restored := storage.NewInmemoryStore(storage.Options{})
			defer restored.Close()

			Expect(restored.Restore(backup)).To(Succeed())

			record, err := restored.Get(ctx, key)
			Expect(err).To(Succeed())
			Expect(gjson.GetBytes(record, "state").String()).To(Equal("disposed"))
		})

		It("orders instances by key hash", func() {
			for _, name := range []string{"c", "a", "b"} {
				change := data(1, 1)
				change.Instance = sample.ComputeKeyHash([]byte(name), false)
				_, err := store.Apply(ctx, change)
				Expect(err).To(Succeed())
			}

			backup, err := store.Backup()
			Expect(err).To(Succeed())

			keys := gjson.GetBytes(backup, "instances.#.keyHash").Array()
			Expect(keys).To(HaveLen(3))
			Expect(keys[0].String() < keys[1].String()).To(BeTrue())
			Expect(keys[1].String() < keys[2].String()).To(BeTrue())
		})

		It("rejects invalid backups", func() {
			Expect(store.Restore([]byte(`{"instances":[`))).NotTo(Succeed())
			Expect(store.Restore([]byte(`{"instances":[{"keyHash":"nope"}]}`))).NotTo(Succeed())
		})
	})
})
