package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luma/samplecast/protocol"
	"github.com/luma/samplecast/storage"
)

var (
	ErrConnClosed     = errors.New("Connection is closed")
	ErrWriteQueueFull = errors.New("Connection write queue is full")
)

type TCPConn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup
	closeOnce  sync.Once

	conn   *net.TCPConn
	reader *bufio.Reader
	store  storage.Store

	writeQueue chan []byte

	log   *zap.Logger
	trace bool
}

// NewTCPConn wraps an accepted connection. Start must be called exactly once.
func NewTCPConn(
	parentCtx context.Context,
	conn *net.TCPConn,
	store storage.Store,
	log *zap.Logger,
) *TCPConn {
	ctx, cancel := context.WithCancel(parentCtx)

	t := &TCPConn{
		ctx:        ctx,
		cancel:     cancel,
		conn:       conn,
		reader:     bufio.NewReader(conn),
		store:      store,
		writeQueue: make(chan []byte, WriteQueueSize),
		log:        log.With(zap.String("remote", conn.RemoteAddr().String())),
	}

	// One each for the read and write loops
	t.loopWaiter.Add(2)

	return t
}

func (t *TCPConn) Close() error {
	t.cancel()

	// Unblock the read loop, which is most likely waiting on the client
	if err := t.conn.SetReadDeadline(time.Now()); err != nil && !errors.Is(err, net.ErrClosed) {
		t.log.Warn("Failed to interrupt read loop", zap.Error(err))
	}

	// Wait for the read/write loops to exit
	t.loopWaiter.Wait()

	return t.closeConn()
}

// Start runs the read and write loops and returns once both have exited.
func (t *TCPConn) Start() {
	go func() {
		defer t.loopWaiter.Done()
		t.ReadLoop()
	}()

	go func() {
		defer t.loopWaiter.Done()
		t.WriteLoop()
	}()

	t.loopWaiter.Wait()

	if err := t.closeConn(); err != nil {
		t.log.Warn("Connection did not close cleanly", zap.Error(err))
	}
}

func (t *TCPConn) ReadLoop() {
	log := t.log.Named("readLoop")

	defer func() {
		// Stop reading, but allow writes to drain
		err := t.conn.CloseRead()
		if err != nil && !isDisconnect(err) && !strings.Contains(err.Error(), "transport endpoint is not connected") {
			log.Warn("Failed to close reads on connection cleanly",
				zap.Error(err))
		}

		// The write loop follows us out once it has drained
		t.cancel()

		log.Debug("Read loop exited")
	}()

	for {
		req, err := protocol.ReadRequest(t.reader)
		if err != nil {
			if isDisconnect(err) || t.ctx.Err() != nil {
				return
			}

			// TODO(rolly) probably want to SetDeadline on the reads...
			log.Warn("Failed to read client request", zap.Error(err))

			var reqErr *protocol.RequestError
			if errors.As(err, &reqErr) {
				t.writeError(reqErr.RequestID, reqErr.Err)
			}

			if errors.Is(err, protocol.ErrBadPublishLength) {
				// The rejected submessage is still in the stream and there is
				// no way to find the next request after it
				log.Warn("Closing connection after a malformed PUB")
				return
			}

			continue
		}

		if t.trace {
			log.Debug("Request",
				zap.String("command", string(req.GetCommand())),
				zap.String("requestID", req.GetRequestID().String()))
		}

		switch c := req.(type) {
		case *protocol.PingRequest:
			if err = protocol.WriteString(t, req.GetRequestID(), "PONG"); err != nil {
				log.Warn("Failed to respond to PING",
					zap.String("requestID", req.GetRequestID().String()),
					zap.Error(err))
			}

		case *protocol.QuitRequest:
			if err = protocol.WriteOk(t, req.GetRequestID()); err != nil {
				log.Warn("Failed to acknowledge QUIT",
					zap.String("requestID", req.GetRequestID().String()),
					zap.Error(err))
			}

			log.Info("Client QUIT, exiting...")
			return

		case *protocol.PublishRequest:
			if err = t.dispatchPublish(c); err != nil {
				log.Warn("Failed to dispatch publish",
					zap.String("requestID", req.GetRequestID().String()),
					zap.Error(err))

				t.writeError(req.GetRequestID(), err)
			}

		case *protocol.GetRequest:
			if err = t.dispatchGet(c); err != nil {
				log.Warn("Failed to get",
					zap.String("key", c.KeyHash.String()),
					zap.Error(err))

				t.writeError(req.GetRequestID(), err)
			}
		}
	}
}

func (t *TCPConn) WriteLoop() {
	log := t.log.Named("writeLoop")

	defer func() {
		err := t.conn.CloseWrite()
		if err != nil && !isDisconnect(err) && !strings.Contains(err.Error(), "transport endpoint is not connected") {
			log.Warn("Failed to close writes on connection cleanly",
				zap.Error(err))
		}

		log.Debug("Write loop exited")
	}()

	for {
		select {
		case <-t.ctx.Done():
			// Flush replies the read loop queued before it stopped
			for {
				select {
				case data := <-t.writeQueue:
					t.write(log, data)
				default:
					return
				}
			}

		// Responses to client requests and instance updates
		case data := <-t.writeQueue:
			t.write(log, data)
		}
	}
}

func (t *TCPConn) write(log *zap.Logger, data []byte) {
	if _, err := t.conn.Write(data); err != nil {
		log.Error("Failed to write from write queue",
			zap.Int("bytes", len(data)),
			zap.Error(err))
	}
}

// Write queues data for the write loop to write into the connection. Write! Write! Write!
func (t *TCPConn) Write(data []byte) (int, error) {
	select {
	case <-t.ctx.Done():
		return 0, ErrConnClosed

	case t.writeQueue <- data:
		return len(data), nil
	}
}

// WriteUpdate queues an instance update without blocking; slow connections
// miss updates instead of holding up every other connection.
func (t *TCPConn) WriteUpdate(update *storage.Update) error {
	var buf bytes.Buffer
	if err := protocol.WriteUpdate(&buf, update.Key, update.Value); err != nil {
		return err
	}

	if !t.isRunning() {
		return ErrConnClosed
	}

	select {
	case t.writeQueue <- buf.Bytes():
		return nil
	default:
		return fmt.Errorf("Update for %s: %w", update.Key, ErrWriteQueueFull)
	}
}

func (t *TCPConn) dispatchPublish(req *protocol.PublishRequest) error {
	msg, err := protocol.DecodeData(req.Submessage)
	if err != nil {
		return fmt.Errorf("Failed to decode submessage: %w", err)
	}

	applyCtx, cancel := context.WithTimeout(t.ctx, RequestTimeout)
	defer cancel()

	if _, err := t.store.Apply(applyCtx, storage.ChangeFromMessage(msg)); err != nil {
		return fmt.Errorf("Failed to apply %s: %w", msg.Sample, err)
	}

	if err := protocol.WriteOk(t, req.GetRequestID()); err != nil {
		return fmt.Errorf("Failed to ack publish %w", err)
	}

	return nil
}

func (t *TCPConn) dispatchGet(req *protocol.GetRequest) error {
	getCtx, cancel := context.WithTimeout(t.ctx, RequestTimeout)
	defer cancel()

	value, err := t.store.Get(getCtx, req.KeyHash)
	if err != nil {
		return err
	}

	if err := protocol.WriteLines(t, req.GetRequestID(), protocol.PrefixGet, value); err != nil {
		return fmt.Errorf("Failed to reply to get %w", err)
	}

	return nil
}

func (t *TCPConn) writeError(requestID protocol.RequestID, err error) {
	if werr := protocol.WriteError(t, requestID, err.Error()); werr != nil {
		t.log.Warn("Failed to write error response",
			zap.String("requestID", requestID.String()),
			zap.Error(werr))
	}
}

func (t *TCPConn) closeConn() (err error) {
	t.closeOnce.Do(func() {
		err = t.conn.Close()
	})

	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}

// isRunning returns true if Close has not been called
func (t *TCPConn) isRunning() bool {
	select {
	case <-t.ctx.Done():
		// if we can read on this channel then it's been closed
		return false

	default:
		return true
	}
}

// isDisconnect reports errors that mean the connection is gone, rather than
// that the client sent something malformed.
func isDisconnect(err error) bool {
	var opErr *net.OpError

	return errors.As(err, &opErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}
