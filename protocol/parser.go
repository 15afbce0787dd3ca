package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/luma/samplecast/sample"
)

// MaxPublishSize bounds the submessage carried by a single PUB. The largest
// DATA submessage is a 4 byte header plus 0xffff octets.
const MaxPublishSize = submessageHeaderSize + 0xffff

const (
	minRequestLen  = 9
	minResponseLen = 7
)

var (
	ErrUnknownCommand          = errors.New("Unknown command could not be parsed")
	ErrRequestTooShort         = errors.New("Request is malformed, it appears to be too short")
	ErrRequestMissingSpace     = errors.New("Command is malformed, it appears to be missing a space between the command and its argument")
	ErrBadPublishLength        = errors.New("Pub command is malformed, the submessage length is not a positive number within bounds")
	ErrResponseMissingErrSpace = errors.New("Err command response is malformed, it appears to be missing a space between ERR and the error messsage")

	PrefixQuit = []byte("QUIT")
	PrefixPing = []byte("PING")
	PrefixGet  = []byte("GET")
	PrefixPub  = []byte("PUB")
	PrefixPong = []byte("PONG")
	PrefixOk   = []byte("OK")
	PrefixErr  = []byte("ERR")

	// PrefixUpdate starts the first line of every update from the server
	PrefixUpdate = []byte("*")
)

// RequestError is returned by ReadRequest for a request whose ID was read but
// whose command could not be parsed, so that the error can be sent back.
type RequestError struct {
	RequestID RequestID
	Err       error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ReadRequest reads bytes from the provided Reader and attempts to parse them
// as a request command.
//
// The same bufio.Reader must be used for every request read from a
// connection, as it may buffer the start of the next request.
//
// To avoid denial of service attacks, the provided bufio.Reader
// should be reading from an io.LimitReader or similar Reader to bound
// the size of responses.
func ReadRequest(r *bufio.Reader) (req Request, err error) {
	// Read the Command
	rawReq, err := r.ReadBytes('\n')
	if err != nil {
		// TODO(rolly)
		// It's possible that we don't have a '\n' yet as we haven't received
		// enough from the client. We should accumulate more until we have a
		// '\n' or we reach a safe limit on buffer size.
		return nil, err
	}

	if len(rawReq) <= len(RequestID{}) {
		return nil, ErrRequestTooShort
	}

	var requestID RequestID
	copy(requestID[:], rawReq[:4])

	req, err = parseRequest(r, requestID, rawReq)
	if err != nil {
		return nil, &RequestError{RequestID: requestID, Err: err}
	}

	return req, nil
}

func parseRequest(r *bufio.Reader, requestID RequestID, rawReq []byte) (Request, error) {
	if len(rawReq) < minRequestLen {
		return nil, ErrRequestTooShort
	}

	// Strip off the request id and the final '\n'
	rawCommand := RemoveTrailingCR(rawReq[4 : len(rawReq)-1])

	// Parse the command
	switch {
	case bytes.HasPrefix(rawCommand, PrefixQuit):
		return &QuitRequest{requestID: requestID}, nil

	case bytes.HasPrefix(rawCommand, PrefixPing):
		return &PingRequest{requestID: requestID}, nil

	case bytes.HasPrefix(rawCommand, PrefixGet):
		arg, err := commandArgument(rawCommand, PrefixGet)
		if err != nil {
			return nil, err
		}

		keyHash, err := sample.ParseKeyHash(string(arg))
		if err != nil {
			return nil, fmt.Errorf("Failed to parse '%s': %w", string(rawCommand), err)
		}

		return &GetRequest{requestID: requestID, KeyHash: keyHash}, nil

	case bytes.HasPrefix(rawCommand, PrefixPub):
		arg, err := commandArgument(rawCommand, PrefixPub)
		if err != nil {
			return nil, err
		}

		size, err := strconv.Atoi(string(arg))
		if err != nil || size <= 0 || size > MaxPublishSize {
			return nil, fmt.Errorf("Failed to parse '%s': %w",
				string(rawCommand), ErrBadPublishLength)
		}

		req := &PublishRequest{requestID: requestID, Submessage: make([]byte, size)}

		// The submessage is binary, so it's read by length rather than by line
		if _, err := io.ReadFull(r, req.Submessage); err != nil {
			return nil, err
		}

		return req, nil

	default:
		return nil, fmt.Errorf("Failed to parse '%s': %w",
			string(rawCommand), ErrUnknownCommand)
	}
}

// ReadResponse reads bytes from the provided Reader and attempts to parse them
// as a server response or a pushed update.
//
// To avoid denial of service attacks, the provided bufio.Reader
// should be reading from an io.LimitReader or similar Reader to bound
// the size of responses.
func ReadResponse(r *bufio.Reader) (resp *Response, err error) {
	// Read the Command
	rawResp, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	if len(rawResp) < minResponseLen {
		return nil, ErrRequestTooShort
	}

	if rawResp[0] == PrefixUpdate[0] {
		// This is a update pushed from the server, not a response to
		// a client request.
		rawKey := RemoveTrailingCR(rawResp[1 : len(rawResp)-1])

		keyHash, err := sample.ParseKeyHash(string(rawKey))
		if err != nil {
			return nil, err
		}

		value, err := readValueLine(r)
		if err != nil {
			return nil, err
		}

		resp := &Response{
			Type:  RespUpdate,
			Args:  []interface{}{keyHash},
			Value: value,
		}

		return resp, nil
	}

	var requestID RequestID
	copy(requestID[:], rawResp[:4])

	// Strip off the request id and the final '\n'
	rawCommand := RemoveTrailingCR(rawResp[4 : len(rawResp)-1])

	// Parse the command
	switch {
	case bytes.HasPrefix(rawCommand, PrefixPong):
		return &Response{Type: RespPong, RequestID: requestID}, nil

	case bytes.HasPrefix(rawCommand, PrefixOk):
		return &Response{Type: RespOk, RequestID: requestID}, nil

	case bytes.HasPrefix(rawCommand, PrefixGet):
		value, err := readValueLine(r)
		if err != nil {
			return nil, err
		}

		resp := &Response{
			Type:      RespGet,
			RequestID: requestID,
			Value:     value,
		}

		return resp, nil

	case bytes.HasPrefix(rawCommand, PrefixErr):
		// <reqID>ERR <errMessage>\r\n
		if len(rawCommand) < 4 || rawCommand[3] != ' ' {
			// There should be a space delimiting the ERR from it's message
			return nil, fmt.Errorf("Failed to parse '%s': %w",
				string(rawCommand), ErrResponseMissingErrSpace)
		}

		resp := &Response{
			Type:      RespErr,
			RequestID: requestID,
			Args: []interface{}{
				errors.New(string(rawCommand[4:])),
			},
		}

		return resp, nil

	default:
		return nil, fmt.Errorf("Failed to parse '%s': %w",
			string(rawCommand), ErrUnknownCommand)
	}
}

func RemoveTrailingCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		// Remove the optional trailing \r
		return data[:len(data)-1]
	}

	return data
}

// commandArgument returns what follows "<prefix> " in rawCommand.
func commandArgument(rawCommand, prefix []byte) ([]byte, error) {
	if len(rawCommand) <= len(prefix) || rawCommand[len(prefix)] != ' ' {
		// There should be a space delimiting the command from it's argument
		return nil, fmt.Errorf("Failed to parse '%s': %w",
			string(rawCommand), ErrRequestMissingSpace)
	}

	return rawCommand[len(prefix)+1:], nil
}

func readValueLine(r *bufio.Reader) ([]byte, error) {
	value, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	return RemoveTrailingCR(value[:len(value)-1]), nil
}
