package protocol

import "github.com/luma/samplecast/sample"

type Response struct {
	Type      ResponseType
	RequestID RequestID
	Args      []interface{}
	Value     []byte
}

// ErrorOrNil returns an error if the response contains an error. Otherwise it
// returns nil.
func (r *Response) ErrorOrNil() error {
	if r.Type == RespErr {
		return r.Args[0].(error)
	}

	return nil
}

// KeyHash returns the instance an UPDATE response is about.
func (r *Response) KeyHash() (sample.KeyHash, bool) {
	if r.Type != RespUpdate || len(r.Args) == 0 {
		return sample.KeyHash{}, false
	}

	h, ok := r.Args[0].(sample.KeyHash)
	return h, ok
}
