package protocol

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/luma/samplecast/sample"
)

var (
	OkTerminal = []byte("OK\r\n")
	Terminal   = []byte("\r\n")
)

func WriteOk(w io.Writer, requestID RequestID) error {
	_, err := w.Write(PrependRequestID(OkTerminal, requestID))
	return err
}

func WriteString(w io.Writer, requestID RequestID, s string) error {
	b := append([]byte(s), '\r', '\n')
	_, err := w.Write(PrependRequestID(b, requestID))
	return err
}

func WriteLines(w io.Writer, requestID RequestID, ss ...[]byte) error {
	if len(ss) == 0 {
		return nil
	}

	lines := make([][]byte, 0, len(ss))
	lines = append(lines, PrependRequestID(ss[0], requestID))
	lines = append(lines, ss[1:]...)

	b := bytes.Join(lines, Terminal)
	b = append(b, '\r', '\n')

	_, err := w.Write(b)
	return err
}

func WriteError(w io.Writer, requestID RequestID, errMsg string) error {
	b := []byte(fmt.Sprintf("ERR %s\r\n", errMsg))
	_, err := w.Write(PrependRequestID(b, requestID))
	return err
}

// WritePublish writes a PUB command followed by the raw submessage in a
// single write.
func WritePublish(w io.Writer, requestID RequestID, submessage []byte) error {
	b := make([]byte, 0, len(PrefixPub)+8+len(submessage))
	b = append(b, PrefixPub...)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(len(submessage)), 10)
	b = append(b, Terminal...)
	b = append(b, submessage...)

	_, err := w.Write(PrependRequestID(b, requestID))
	return err
}

// WriteUpdate writes an update for the instance keyHash. Updates carry no
// request ID.
func WriteUpdate(w io.Writer, keyHash sample.KeyHash, value []byte) error {
	b := make([]byte, 0, 1+2*sample.KeyHashSize+len(value)+2)
	b = append(b, PrefixUpdate...)
	b = append(b, keyHash.String()...)
	b = append(b, '\n')
	b = append(b, value...)
	b = append(b, '\n')

	_, err := w.Write(b)
	return err
}

func PrependRequestID(data []byte, requestID RequestID) []byte {
	return append(requestID[:], data...)
}
