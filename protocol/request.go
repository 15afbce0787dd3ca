package protocol

import "github.com/luma/samplecast/sample"

type RequestID [4]byte

func (r RequestID) String() string {
	return string(r[:])
}

type Request interface {
	GetRequestID() RequestID
	GetCommand() Command
}

type QuitRequest struct {
	requestID RequestID
}

func (q *QuitRequest) GetRequestID() RequestID {
	return q.requestID
}

func (q *QuitRequest) GetCommand() Command {
	return QUIT
}

type PingRequest struct {
	requestID RequestID
}

func (q *PingRequest) GetRequestID() RequestID {
	return q.requestID
}

func (q *PingRequest) GetCommand() Command {
	return PING
}

// PublishRequest carries one raw DATA submessage. It is decoded by the
// receiver, not the parser.
type PublishRequest struct {
	requestID  RequestID
	Submessage []byte
}

func (q *PublishRequest) GetRequestID() RequestID {
	return q.requestID
}

func (q *PublishRequest) GetCommand() Command {
	return PUB
}

type GetRequest struct {
	requestID RequestID
	KeyHash   sample.KeyHash
}

func (q *GetRequest) GetRequestID() RequestID {
	return q.requestID
}

func (q *GetRequest) GetCommand() Command {
	return GET
}

var _ Request = (*QuitRequest)(nil)
var _ Request = (*PingRequest)(nil)
var _ Request = (*PublishRequest)(nil)
var _ Request = (*GetRequest)(nil)
