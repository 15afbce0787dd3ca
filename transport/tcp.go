package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"sync"
	"time"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/samplecast/storage"
)

const (
	WriteQueueSize = 127

	// RequestTimeout bounds how long a single request may spend in the store
	RequestTimeout = 3 * time.Second
)

type TCP struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	addr      string
	reuseport bool

	numListeners int

	mu        sync.Mutex
	listeners []*TCPListener

	store storage.Store

	log   *zap.Logger
	trace bool
}

func NewTCP(options Options) *TCP {
	numListeners := options.NumListeners

	if numListeners < 1 {
		numListeners = runtime.NumCPU()
	}

	if !options.Reuseport {
		// Only one socket can bind the port without SO_REUSEPORT
		numListeners = 1
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &TCP{
		addr:         net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		reuseport:    options.Reuseport,
		numListeners: numListeners,
		listeners:    make([]*TCPListener, 0, numListeners),
		trace:        options.Trace,
		store:        options.Store,
		log:          log,
	}
}

// Start binds every listener and then serves them in the background. It
// returns once the port is bound, or with the first bind error.
func (w *TCP) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	w.cancel = cancel

	w.log.Info("Starting tcp listeners", zap.Int("count", w.numListeners))

	for i := 0; i < w.numListeners; i++ {
		if err := w.startListener(ctx, i); err != nil {
			cancel()
			return multierr.Append(err, w.Close())
		}
	}

	return nil
}

func (t *TCP) Store() storage.Store {
	return t.store
}

func (w *TCP) startListener(ctx context.Context, n int) error {
	listener := NewTCPListener(ctx, w.addr, w.store, w.log.Named("listener").With(zap.Int("listener", n)))
	listener.trace = w.trace

	if err := listener.Bind(w.reuseport); err != nil {
		return fmt.Errorf("Failed to listen on %s: %w", w.addr, err)
	}

	w.mu.Lock()
	w.listeners = append(w.listeners, listener)
	w.mu.Unlock()

	w.stopWaiter.Add(1)
	go func() {
		defer w.stopWaiter.Done()

		if err := listener.Listen(); err != nil {
			// TODO(rolly) as any of the listeners can fail, but we don't treat this as fatal,
			//             you can end up with less than the required amount of listeners running
			w.log.Error("Failed to listen", zap.Error(err))
		}
	}()

	return nil
}

// Close immediately closes all active listeners and connections.
func (w *TCP) Close() (err error) {
	w.log.Info("Stopping TCP server")
	if w.cancel != nil {
		w.cancel()
	}

	w.mu.Lock()
	listeners := w.listeners
	w.listeners = nil
	w.mu.Unlock()

	// Tell listeners to stop
	for _, listener := range listeners {
		err = multierr.Append(err, listener.Close())
	}

	w.stopWaiter.Wait()
	w.log.Info("Listeners stopped")

	return err
}

type TCPListener struct {
	ctx context.Context

	addr     string
	listener net.Listener
	log      *zap.Logger
	trace    bool

	mu          sync.Mutex
	activeConns map[*TCPConn]struct{}

	store storage.Store
}

func NewTCPListener(
	ctx context.Context,
	addr string,
	store storage.Store,
	log *zap.Logger,
) *TCPListener {
	return &TCPListener{
		ctx:         ctx,
		activeConns: make(map[*TCPConn]struct{}),
		addr:        addr,
		store:       store,
		log:         log,
	}
}

// Bind opens the listening socket.
func (t *TCPListener) Bind(useReuseport bool) (err error) {
	if useReuseport {
		t.listener, err = reuseport.Listen("tcp", t.addr)
	} else {
		t.listener, err = net.Listen("tcp", t.addr)
	}

	return err
}

// Close closes the listening socket and every connection accepted from it.
func (t *TCPListener) Close() (err error) {
	if t.listener != nil {
		if lerr := t.listener.Close(); lerr != nil && !errors.Is(lerr, net.ErrClosed) {
			err = multierr.Append(err, lerr)
		}
	}

	t.mu.Lock()
	conns := make([]*TCPConn, 0, len(t.activeConns))
	for conn := range t.activeConns {
		conns = append(conns, conn)
	}
	t.mu.Unlock()

	for _, conn := range conns {
		err = multierr.Append(err, conn.Close())
	}

	return err
}

// Listen accepts connections until the listener is closed or its context is
// cancelled. Bind must have been called.
func (t *TCPListener) Listen() error {
	var loopWaiter sync.WaitGroup

	go func() {
		<-t.ctx.Done()

		t.log.Info("Closing listener")
		if err := t.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			t.log.Warn("TCP Listener did not close cleanly", zap.Error(err))
		}
	}()

	// Listen for storage updates until the listener stops
	stopUpdates := make(chan struct{})
	updates := t.store.ListenToUpdates()

	loopWaiter.Add(1)
	go func() {
		defer loopWaiter.Done()
		defer t.store.Unlisten(updates)

		for {
			select {
			case <-t.ctx.Done():
				return

			case <-stopUpdates:
				return

			case update, ok := <-updates:
				if !ok {
					return
				}

				if err := t.WriteUpdate(update); err != nil {
					t.log.Warn("Failed to write update to every connection",
						zap.String("key", update.Key.String()),
						zap.Error(err))
				}
			}
		}
	}()

	defer func() {
		close(stopUpdates)

		t.log.Info("Waiting for Read/Write loops to stop")
		loopWaiter.Wait()
		t.log.Info("Listener stopped")
	}()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// The listener was closed while we were waiting for new connections
				// that's fine.
				t.log.Info("Stopped accepting new connections")
				return nil
			}

			// TODO(rolly) can we recover from some classes of err?
			return err
		}

		tcpConn := NewTCPConn(t.ctx, conn.(*net.TCPConn), t.store, t.log.Named("conn"))
		tcpConn.trace = t.trace

		t.addConn(tcpConn)

		loopWaiter.Add(1)
		go func() {
			defer loopWaiter.Done()
			defer t.removeConn(tcpConn)

			tcpConn.Start()
		}()
	}
}

// WriteUpdate queues the update on every active connection.
func (t *TCPListener) WriteUpdate(update *storage.Update) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for conn := range t.activeConns {
		if uerr := conn.WriteUpdate(update); uerr != nil {
			err = multierr.Append(err, uerr)
		}
	}

	return err
}

func (t *TCPListener) addConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.activeConns[conn] = struct{}{}
}

func (t *TCPListener) removeConn(conn *TCPConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.activeConns, conn)
}
