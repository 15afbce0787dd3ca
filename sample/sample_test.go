package sample_test

import (
	"bytes"
	"sync"

	. "github.com/onsi/ginkgo"
	"github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/samplecast/sample"
)

func payloadOf(n int) sample.SerializedPayload {
	return sample.NewSerializedPayload(sample.CDR_LE, [2]byte{}, bytes.Repeat([]byte{0xab}, n))
}

var disposalKinds = []sample.ChangeKind{
	sample.NotAliveDisposed,
	sample.NotAliveUnregistered,
	sample.NotAliveDisposedUnregistered,
}

var _ = Describe("Sample", func() {
	var hash sample.KeyHash
	copy(hash[:], []byte("0123456789abcdef"))

	Describe("New()", func() {
		It("has a payload size of 37 and is alive for a 37 byte payload", func() {
			s := sample.New(payloadOf(37))
			Expect(s.Kind()).To(Equal(sample.KindData))
			Expect(s.PayloadSize()).To(Equal(37))
			Expect(s.ChangeKind()).To(Equal(sample.Alive))
		})

		It("accepts an empty payload", func() {
			s := sample.New(payloadOf(0))
			Expect(s.PayloadSize()).To(BeZero())
			Expect(s.ChangeKind()).To(Equal(sample.Alive))
		})

		table.DescribeTable("payload size is the payload length",
			func(n int) {
				Expect(sample.New(payloadOf(n)).PayloadSize()).To(Equal(n))
			},
			table.Entry("1 byte", 1),
			table.Entry("16 bytes", 16),
			table.Entry("17 bytes", 17),
			table.Entry("64KiB", 64*1024),
		)

		It("exposes the payload but no key hash", func() {
			s := sample.New(payloadOf(3))

			p, ok := s.SerializedPayload()
			Expect(ok).To(BeTrue())
			Expect(p.Equal(payloadOf(3))).To(BeTrue())

			_, ok = s.KeyHash()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("NewDisposedByKey()", func() {
		It("has a payload size of 9 and is disposed for a 9 byte key", func() {
			s := sample.NewDisposedByKey(sample.NotAliveDisposed, payloadOf(9))
			Expect(s.Kind()).To(Equal(sample.KindDisposeByKey))
			Expect(s.PayloadSize()).To(Equal(9))
			Expect(s.ChangeKind()).To(Equal(sample.NotAliveDisposed))
		})

		It("passes every change kind through unchanged", func() {
			for _, kind := range disposalKinds {
				Expect(sample.NewDisposedByKey(kind, payloadOf(4)).ChangeKind()).To(Equal(kind))
			}
		})

		It("exposes the key as its serialized payload", func() {
			s := sample.NewDisposedByKey(sample.NotAliveUnregistered, payloadOf(5))

			key, ok := s.SerializedPayload()
			Expect(ok).To(BeTrue())
			Expect(key.Len()).To(Equal(5))
		})
	})

	Describe("NewDisposedByKeyHash()", func() {
		It("has a payload size of 16 and is unregistered", func() {
			s := sample.NewDisposedByKeyHash(sample.NotAliveUnregistered, hash)
			Expect(s.Kind()).To(Equal(sample.KindDisposeByKeyHash))
			Expect(s.PayloadSize()).To(Equal(sample.KeyHashSize))
			Expect(s.PayloadSize()).To(Equal(16))
			Expect(s.ChangeKind()).To(Equal(sample.NotAliveUnregistered))
		})

		It("has a payload size of 16 for the all zero hash", func() {
			s := sample.NewDisposedByKeyHash(sample.NotAliveUnregistered, sample.KeyHash{})
			Expect(s.PayloadSize()).To(Equal(16))
			Expect(s.ChangeKind()).To(Equal(sample.NotAliveUnregistered))
		})

		It("passes every change kind through unchanged", func() {
			for _, kind := range disposalKinds {
				Expect(sample.NewDisposedByKeyHash(kind, hash).ChangeKind()).To(Equal(kind))
			}
		})

		It("exposes the key hash but no payload", func() {
			s := sample.NewDisposedByKeyHash(sample.NotAliveDisposed, hash)

			h, ok := s.KeyHash()
			Expect(ok).To(BeTrue())
			Expect(h).To(Equal(hash))

			_, ok = s.SerializedPayload()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Equal()", func() {
		samples := func() []sample.Sample {
			return []sample.Sample{
				sample.New(payloadOf(4)),
				sample.NewDisposedByKey(sample.NotAliveDisposed, payloadOf(4)),
				sample.NewDisposedByKeyHash(sample.NotAliveDisposed, hash),
			}
		}

		It("is true for samples built from equal values", func() {
			a, b := samples(), samples()
			for i := range a {
				Expect(a[i].Equal(b[i])).To(BeTrue(), a[i].String())
			}
		})

		It("is false for differing variants", func() {
			s := samples()
			for i := range s {
				for j := range s {
					if i != j {
						Expect(s[i].Equal(s[j])).To(BeFalse())
					}
				}
			}
		})

		It("is false for differing values", func() {
			Expect(sample.New(payloadOf(4)).Equal(sample.New(payloadOf(5)))).To(BeFalse())

			Expect(sample.NewDisposedByKey(sample.NotAliveDisposed, payloadOf(4)).
				Equal(sample.NewDisposedByKey(sample.NotAliveUnregistered, payloadOf(4)))).To(BeFalse())

			other := hash
			other[15] ^= 0xff
			Expect(sample.NewDisposedByKeyHash(sample.NotAliveDisposed, hash).
				Equal(sample.NewDisposedByKeyHash(sample.NotAliveDisposed, other))).To(BeFalse())
		})

		It("compares the representation of payloads", func() {
			le := sample.NewSerializedPayload(sample.CDR_LE, [2]byte{}, []byte{1})
			be := sample.NewSerializedPayload(sample.CDR_BE, [2]byte{}, []byte{1})
			Expect(sample.New(le).Equal(sample.New(be))).To(BeFalse())
		})
	})

	Describe("Clone()", func() {
		It("is equal to the original", func() {
			for _, s := range []sample.Sample{
				sample.New(payloadOf(8)),
				sample.NewDisposedByKey(sample.NotAliveDisposed, payloadOf(8)),
				sample.NewDisposedByKeyHash(sample.NotAliveUnregistered, hash),
			} {
				Expect(s.Clone().Equal(s)).To(BeTrue())
			}
		})

		It("does not let changes to a copy of the payload leak into the original", func() {
			s := sample.New(payloadOf(8))
			clone := s.Clone()

			p, _ := clone.SerializedPayload()
			b := p.Bytes()
			b[0] = 0x00

			original, _ := s.SerializedPayload()
			Expect(original.Bytes()[0]).To(Equal(byte(0xab)))
			Expect(s.Equal(clone)).To(BeTrue())
		})

		It("can be read from many goroutines", func() {
			s := sample.NewDisposedByKey(sample.NotAliveDisposed, payloadOf(32))

			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()

					c := s.Clone()
					Expect(c.PayloadSize()).To(Equal(32))
					Expect(c.ChangeKind()).To(Equal(sample.NotAliveDisposed))
				}()
			}
			wg.Wait()
		})
	})

	Describe("SerializedPayload", func() {
		It("copies the bytes it is built from", func() {
			raw := []byte{1, 2, 3}
			p := sample.NewSerializedPayload(sample.CDR_BE, [2]byte{}, raw)
			raw[0] = 9

			Expect(p.Bytes()).To(Equal([]byte{1, 2, 3}))
		})

		It("includes the encapsulation header in its serialized length", func() {
			p := payloadOf(10)
			Expect(p.Len()).To(Equal(10))
			Expect(p.LenSerialized()).To(Equal(14))
		})

		It("appends the representation big endian", func() {
			p := sample.NewSerializedPayload(sample.PL_CDR_LE, [2]byte{0, 1}, []byte{7})
			Expect(p.AppendSerialized(nil)).To(Equal([]byte{0x00, 0x03, 0x00, 0x01, 0x07}))
		})

		It("writes its value", func() {
			var buf bytes.Buffer
			n, err := payloadOf(6).WriteTo(&buf)
			Expect(err).To(Succeed())
			Expect(n).To(Equal(int64(6)))
			Expect(buf.Len()).To(Equal(6))
		})

		It("knows which representations are big endian", func() {
			for _, rep := range []sample.RepresentationIdentifier{
				sample.CDR_BE, sample.PL_CDR_BE, sample.CDR2_BE, sample.PL_CDR2_BE, sample.D_CDR2_BE,
			} {
				Expect(rep.BigEndian()).To(BeTrue(), rep.String())
			}

			for _, rep := range []sample.RepresentationIdentifier{
				sample.CDR_LE, sample.PL_CDR_LE, sample.CDR2_LE, sample.PL_CDR2_LE, sample.D_CDR2_LE, sample.XML,
			} {
				Expect(rep.BigEndian()).To(BeFalse(), rep.String())
			}
		})
	})
})
