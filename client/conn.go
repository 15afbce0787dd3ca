package client

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/luma/samplecast/protocol"
	"github.com/luma/samplecast/sample"
)

var (
	ErrDisconnected       = errors.New("Client is disconnected")
	ErrUnexpectedResponse = errors.New("Unexpected response type")
)

// Update is an instance update pushed by the server. Value is JSON.
type Update struct {
	Key   sample.KeyHash
	Value []byte
}

type Conn struct {
	ctx context.Context

	conn   net.Conn
	reader *bufio.Reader

	updateChan chan *Update
	readDone   chan struct{}

	respMu    sync.Mutex
	respChans map[protocol.RequestID]chan *protocol.Response

	idMu      sync.Mutex
	requestId uint32

	log *zap.Logger
}

func New(log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}

	return &Conn{
		log:        log,
		updateChan: make(chan *Update, 255),
		readDone:   make(chan struct{}),
		respChans:  make(map[protocol.RequestID]chan *protocol.Response),
	}
}

// Connect dials the server and starts reading its responses and updates.
func (c *Conn) Connect(ctx context.Context, addr string) error {
	c.ctx = ctx

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)

	go c.readLoop()

	return nil
}

// Disconnect closes the connection and waits for the read loop to exit.
func (c *Conn) Disconnect() error {
	err := c.conn.Close()
	<-c.readDone

	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}

// UpdateChan delivers updates pushed by the server. It is closed when the
// connection goes away.
func (c *Conn) UpdateChan() <-chan *Update {
	return c.updateChan
}

func (c *Conn) Quit(ctx context.Context) error {
	_, err := c.request(ctx, protocol.RespOk, func(reqID protocol.RequestID) error {
		return protocol.WriteString(c.conn, reqID, string(protocol.QUIT))
	})

	return err
}

func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.request(ctx, protocol.RespPong, func(reqID protocol.RequestID) error {
		return protocol.WriteString(c.conn, reqID, string(protocol.PING))
	})

	return err
}

// Publish sends msg as a DATA submessage and waits for the server to accept
// it.
func (c *Conn) Publish(ctx context.Context, msg *protocol.DataMessage) error {
	submessage, err := protocol.EncodeData(msg, binary.LittleEndian)
	if err != nil {
		return err
	}

	_, err = c.request(ctx, protocol.RespOk, func(reqID protocol.RequestID) error {
		return protocol.WritePublish(c.conn, reqID, submessage)
	})

	return err
}

// Get returns the JSON record of an instance.
func (c *Conn) Get(ctx context.Context, keyHash sample.KeyHash) ([]byte, error) {
	resp, err := c.request(ctx, protocol.RespGet, func(reqID protocol.RequestID) error {
		return protocol.WriteString(c.conn, reqID, fmt.Sprintf("%s %s", protocol.GET, keyHash))
	})

	if err != nil {
		return nil, err
	}

	return resp.Value, nil
}

func (c *Conn) request(
	ctx context.Context,
	expected protocol.ResponseType,
	write func(reqID protocol.RequestID) error,
) (*protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reqID, respChan := c.createResponseChan()
	defer c.destroyResponseChan(reqID)

	select {
	case <-c.readDone:
		return nil, ErrDisconnected
	default:
	}

	if err := write(reqID); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrDisconnected
		}

		return checkResponse(resp, expected)

	case <-c.readDone:
		// The response may have arrived just before the connection closed
		select {
		case resp, ok := <-respChan:
			if ok {
				return checkResponse(resp, expected)
			}
		default:
		}

		return nil, ErrDisconnected

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func checkResponse(resp *protocol.Response, expected protocol.ResponseType) (*protocol.Response, error) {
	if err := resp.ErrorOrNil(); err != nil {
		return nil, err
	}

	if resp.Type != expected {
		return nil, fmt.Errorf("Got %s, expected %s: %w", resp.Type, expected, ErrUnexpectedResponse)
	}

	return resp, nil
}

func (c *Conn) readLoop() {
	log := c.log.Named("readLoop")

	defer func() {
		close(c.updateChan)
		c.failPendingRequests()
		close(c.readDone)
	}()

	for {
		// Parse command responses and updates
		resp, err := protocol.ReadResponse(c.reader)
		if err != nil {
			var opErr *net.OpError
			if errors.Is(err, io.EOF) || errors.As(err, &opErr) || c.ctx.Err() != nil {
				log.Info("Connection closed, exiting...")
				return
			}

			log.Warn("Failed to read server response", zap.Error(err))
			continue
		}

		if resp.Type == protocol.RespUpdate {
			// Handle responses that indicate instances were updated
			key, _ := resp.KeyHash()

			select {
			case c.updateChan <- &Update{Key: key, Value: resp.Value}:
			default:
				log.Warn("Dropped update, nobody is reading updates",
					zap.String("key", key.String()))
			}
			continue
		}

		// Handle responses to our requests
		c.sendToResponseChan(resp.RequestID, resp)
	}
}

func (c *Conn) createResponseChan() (protocol.RequestID, <-chan *protocol.Response) {
	reqID := c.getNextRequestID()
	respChan := make(chan *protocol.Response, 1)

	c.respMu.Lock()
	c.respChans[reqID] = respChan
	c.respMu.Unlock()

	return reqID, respChan
}

func (c *Conn) sendToResponseChan(reqID protocol.RequestID, resp *protocol.Response) {
	c.respMu.Lock()
	defer c.respMu.Unlock()

	respChan, ok := c.respChans[reqID]
	if !ok {
		return
	}

	// Buffered for exactly one response
	respChan <- resp
	delete(c.respChans, reqID)
}

func (c *Conn) destroyResponseChan(reqID protocol.RequestID) {
	c.respMu.Lock()
	delete(c.respChans, reqID)
	c.respMu.Unlock()
}

func (c *Conn) failPendingRequests() {
	c.respMu.Lock()
	defer c.respMu.Unlock()

	for reqID, respChan := range c.respChans {
		close(respChan)
		delete(c.respChans, reqID)
	}
}

// getNextRequestID returns 4 hex digits, so that an ID can never contain the
// line terminators of the protocol.
func (c *Conn) getNextRequestID() protocol.RequestID {
	var requestID uint32

	c.idMu.Lock()
	if c.requestId < math.MaxUint16 {
		c.requestId += 1
	} else {
		// Wrap around instead of overflowing
		c.requestId = 0
	}

	requestID = c.requestId
	c.idMu.Unlock()

	var reqID protocol.RequestID
	copy(reqID[:], fmt.Sprintf("%04x", requestID))
	return reqID
}
