package protocol_test

import (
	"bufio"
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/samplecast/protocol"
	"github.com/luma/samplecast/sample"
)

var _ = Describe("Parsing/ Writer", func() {
	var reqID protocol.RequestID
	copy(reqID[:], []byte("1234"))

	Describe("WriteOk", func() {
		It("includes the request ID as a prefix and ends in \r\n", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteOk(w, reqID)).To(Succeed())
			Expect(w.String()).To(HavePrefix("1234"))
			Expect(w.String()).To(HaveSuffix("\r\n"))
		})

		It("include OK", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteOk(w, reqID)).To(Succeed())
			Expect(w.String()).To(Equal("1234OK\r\n"))
		})
	})

	Describe("WriteString", func() {
		It("include the response string", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteString(w, reqID, "resp")).To(Succeed())
			Expect(w.String()).To(Equal("1234resp\r\n"))
		})
	})

	Describe("WriteLines", func() {
		It("joins the lines and prefixes the first with the request ID", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteLines(w, reqID, []byte("key"), []byte("value"))).To(Succeed())
			Expect(w.String()).To(Equal("1234key\r\nvalue\r\n"))
		})

		It("writes nothing without lines", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteLines(w, reqID)).To(Succeed())
			Expect(w.Len()).To(BeZero())
		})
	})

	Describe("WriteError", func() {
		It("include the ERR response code and the error string", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteError(w, reqID, "errMessage")).To(Succeed())
			Expect(w.String()).To(Equal("1234ERR errMessage\r\n"))
		})
	})

	Describe("WritePublish", func() {
		It("writes the length then the raw submessage", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WritePublish(w, reqID, []byte{0x15, 0x00, '\n'})).To(Succeed())
			Expect(w.Bytes()).To(Equal([]byte("1234PUB 3\r\n\x15\x00\n")))
		})

		It("can be read back by ReadRequest", func() {
			w := bytes.NewBuffer([]byte{})
			Expect(protocol.WritePublish(w, reqID, []byte("submessage"))).To(Succeed())

			req, err := protocol.ReadRequest(bufio.NewReader(w))
			Expect(err).To(Succeed())
			Expect(req.(*protocol.PublishRequest).Submessage).To(Equal([]byte("submessage")))
		})
	})

	Describe("WriteUpdate", func() {
		It("writes the key hash and the value without a request ID", func() {
			w := bytes.NewBuffer([]byte{})
			var h sample.KeyHash
			h[15] = 1

			Expect(protocol.WriteUpdate(w, h, []byte(`{"state":"alive"}`))).To(Succeed())
			Expect(w.String()).To(Equal("*00000000000000000000000000000001\n{\"state\":\"alive\"}\n"))
		})
	})
})
