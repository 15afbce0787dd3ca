package sample_test

import (
	"crypto/md5"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/samplecast/sample"
)

var _ = Describe("KeyHash", func() {
	Describe("ComputeKeyHash()", func() {
		It("zero pads short keys", func() {
			h := sample.ComputeKeyHash([]byte{0, 0, 0, 42}, false)
			Expect(h[:4]).To(Equal([]byte{0, 0, 0, 42}))
			Expect(h[4:]).To(Equal(make([]byte, 12)))
		})

		It("uses the key itself when it is exactly 16 bytes", func() {
			key := []byte("0123456789abcdef")
			h := sample.ComputeKeyHash(key, false)
			Expect(h[:]).To(Equal(key))
		})

		It("digests keys longer than 16 bytes", func() {
			key := []byte("0123456789abcdefg")
			Expect(sample.ComputeKeyHash(key, false)).To(Equal(sample.KeyHash(md5.Sum(key))))
		})

		It("digests short keys when forced to", func() {
			key := []byte{1}
			Expect(sample.ComputeKeyHash(key, true)).To(Equal(sample.KeyHash(md5.Sum(key))))
		})
	})

	Describe("ParseKeyHash()", func() {
		It("round trips through String()", func() {
			h := sample.ComputeKeyHash([]byte("some key"), true)
			parsed, err := sample.ParseKeyHash(h.String())
			Expect(err).To(Succeed())
			Expect(parsed).To(Equal(h))
		})

		It("rejects hashes of the wrong width", func() {
			_, err := sample.ParseKeyHash("abcd")
			Expect(errors.Is(err, sample.ErrBadKeyHash)).To(BeTrue())
		})

		It("rejects invalid hex", func() {
			_, err := sample.ParseKeyHash("zz")
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("ChangeKind", func() {
	It("knows which kinds dispose and which unregister", func() {
		Expect(sample.Alive.IsDisposed()).To(BeFalse())
		Expect(sample.NotAliveDisposed.IsDisposed()).To(BeTrue())
		Expect(sample.NotAliveDisposed.IsUnregistered()).To(BeFalse())
		Expect(sample.NotAliveUnregistered.IsUnregistered()).To(BeTrue())
		Expect(sample.NotAliveDisposedUnregistered.IsDisposed()).To(BeTrue())
		Expect(sample.NotAliveDisposedUnregistered.IsUnregistered()).To(BeTrue())
	})

	It("has a readable name", func() {
		Expect(sample.NotAliveUnregistered.String()).To(Equal("NOT_ALIVE_UNREGISTERED"))
	})
})
