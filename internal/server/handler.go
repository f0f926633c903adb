package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smbcore/smbd/internal/logger"
)

// Handler is the common contract every acceptor-per-protocol handler
// satisfies: a name for lookup, the protocol it serves, the address it
// ends up bound to, and a start/stop lifecycle driven by NetworkServer.
type Handler interface {
	Name() string
	Protocol() string
	BoundAddress() string

	// Start binds and begins accepting, blocking until ctx is cancelled
	// or Stop is called. srv is used to mint SrvSessions and fire
	// session events.
	Start(ctx context.Context, srv *NetworkServer) error
	Stop() error
}

// SessionHandler binds a stream socket and constructs a SrvSession for
// each accepted connection.
type SessionHandler interface {
	Handler
}

// DatagramHandler dispatches each received packet through
// ProcessDatagram rather than constructing a persistent session.
// ReuseBuffer tells the caller whether it may recycle the packet buffer
// immediately or whether the handler retained a reference to it.
type DatagramHandler interface {
	Handler
	ProcessDatagram(pkt []byte, from net.Addr) (reuseBuffer bool, err error)
}

// ChannelHandler is the non-blocking-acceptance variant of
// SessionHandler: it preserves the same session-construction contract
// but never parks a goroutine in a blocking Accept call, instead
// multiplexing acceptance through a channel.
type ChannelHandler interface {
	SessionHandler
}

// HandlerList is a name-keyed registry of handlers with
// registration-order enumeration and WaitWhileEmpty for startup
// coordination — a caller that needs at least one handler registered
// before proceeding (e.g. a CLI waiting for the listener to be wired up)
// blocks there instead of polling.
type HandlerList struct {
	mu       sync.Mutex
	cond     *sync.Cond
	handlers map[string]Handler
	order    []string
}

// NewHandlerList constructs an empty registry.
func NewHandlerList() *HandlerList {
	l := &HandlerList{handlers: make(map[string]Handler)}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Add registers h under h.Name(), replacing any existing handler with
// the same name without changing its registration-order slot.
func (l *HandlerList) Add(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.handlers[h.Name()]; !exists {
		l.order = append(l.order, h.Name())
	}
	l.handlers[h.Name()] = h
	l.cond.Broadcast()
}

// Get returns the handler registered under name, if any.
func (l *HandlerList) Get(name string) (Handler, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.handlers[name]
	return h, ok
}

// Remove drops the handler registered under name.
func (l *HandlerList) Remove(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handlers, name)
	for i, n := range l.order {
		if n == name {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// List returns every registered handler in registration order.
func (l *HandlerList) List() []Handler {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Handler, 0, len(l.order))
	for _, n := range l.order {
		if h, ok := l.handlers[n]; ok {
			out = append(out, h)
		}
	}
	return out
}

// WaitWhileEmpty blocks until at least one handler is registered or ctx
// is cancelled.
func (l *HandlerList) WaitWhileEmpty(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.cond.Broadcast()
			l.mu.Unlock()
		case <-stopped:
		}
	}()
	defer close(stopped)

	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.handlers) == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.cond.Wait()
	}
	return nil
}

// TCPConnFunc processes one accepted connection for the lifetime of its
// SrvSession. It must return when ctx is cancelled or the connection
// closes. The wire protocol itself is out of scope for this package —
// callers supply their own decoder here.
type TCPConnFunc func(ctx context.Context, sess *SrvSession, conn net.Conn)

// TCPSessionHandlerConfig configures a TCPSessionHandler.
type TCPSessionHandlerConfig struct {
	HandlerName     string
	ProtocolName    string
	BindAddress     string
	MaxConnections  int
	ShutdownTimeout time.Duration
	ConnHandler     TCPConnFunc
	ShareMapper     ShareMapper
}

// TCPSessionHandler is a stream-socket SessionHandler: it accepts TCP
// connections, constructs a SrvSession per connection, and dispatches to
// a caller-supplied TCPConnFunc, with the same graceful-shutdown
// machinery as the rest of this package's lifecycle code (connection
// semaphore, active-connection tracking for forced closure on timeout).
type TCPSessionHandler struct {
	cfg TCPSessionHandlerConfig

	listenerMu sync.RWMutex
	listener   net.Listener

	shutdownOnce sync.Once
	shutdown     chan struct{}

	connCount         atomic.Int32
	connSemaphore     chan struct{}
	activeConnections sync.Map

	activeConns   sync.WaitGroup
	listenerReady chan struct{}
}

// NewTCPSessionHandler constructs a handler in its unstarted state.
func NewTCPSessionHandler(cfg TCPSessionHandlerConfig) *TCPSessionHandler {
	var sema chan struct{}
	if cfg.MaxConnections > 0 {
		sema = make(chan struct{}, cfg.MaxConnections)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &TCPSessionHandler{
		cfg:           cfg,
		shutdown:      make(chan struct{}),
		connSemaphore: sema,
		listenerReady: make(chan struct{}),
	}
}

func (h *TCPSessionHandler) Name() string     { return h.cfg.HandlerName }
func (h *TCPSessionHandler) Protocol() string { return h.cfg.ProtocolName }

// BoundAddress blocks until the listener is ready, then returns its
// address. Returns "" if Start never succeeded.
func (h *TCPSessionHandler) BoundAddress() string {
	<-h.listenerReady
	h.listenerMu.RLock()
	defer h.listenerMu.RUnlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// ActiveConnections returns the current number of accepted connections.
func (h *TCPSessionHandler) ActiveConnections() int32 { return h.connCount.Load() }

// Start binds the listener and accepts connections until ctx is
// cancelled or Stop is called.
func (h *TCPSessionHandler) Start(ctx context.Context, srv *NetworkServer) error {
	listener, err := net.Listen("tcp", h.cfg.BindAddress)
	if err != nil {
		close(h.listenerReady)
		return fmt.Errorf("%s: listen %s: %w", h.cfg.HandlerName, h.cfg.BindAddress, err)
	}

	h.listenerMu.Lock()
	h.listener = listener
	h.listenerMu.Unlock()
	close(h.listenerReady)

	logger.Info("session handler listening", "handler", h.cfg.HandlerName, "protocol", h.cfg.ProtocolName, "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		h.initiateShutdown()
	}()

	for {
		if h.connSemaphore != nil {
			select {
			case h.connSemaphore <- struct{}{}:
			case <-h.shutdown:
				return h.gracefulShutdown()
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			if h.connSemaphore != nil {
				<-h.connSemaphore
			}
			select {
			case <-h.shutdown:
				return h.gracefulShutdown()
			default:
				logger.Debug("accept error", "handler", h.cfg.HandlerName, logger.Err(err))
				continue
			}
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}

		h.activeConns.Add(1)
		h.connCount.Add(1)
		addr := conn.RemoteAddr().String()
		h.activeConnections.Store(addr, conn)

		sess := srv.newSession(h.cfg.ProtocolName, addr, "", h.cfg.ShareMapper)

		go func(conn net.Conn, addr string, sess *SrvSession) {
			defer func() {
				h.activeConnections.Delete(addr)
				h.activeConns.Done()
				h.connCount.Add(-1)
				if h.connSemaphore != nil {
					<-h.connSemaphore
				}
				srv.closeSession(sess)
			}()

			if h.cfg.ConnHandler != nil {
				h.cfg.ConnHandler(ctx, sess, conn)
			}
		}(conn, addr, sess)
	}
}

func (h *TCPSessionHandler) initiateShutdown() {
	h.shutdownOnce.Do(func() {
		close(h.shutdown)
		h.listenerMu.RLock()
		l := h.listener
		h.listenerMu.RUnlock()
		if l != nil {
			_ = l.Close()
		}
		h.interruptBlockingReads()
	})
}

func (h *TCPSessionHandler) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)
	h.activeConnections.Range(func(_, v any) bool {
		if conn, ok := v.(net.Conn); ok {
			_ = conn.SetReadDeadline(deadline)
		}
		return true
	})
}

func (h *TCPSessionHandler) gracefulShutdown() error {
	done := make(chan struct{})
	go func() {
		h.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(h.cfg.ShutdownTimeout):
		remaining := h.connCount.Load()
		h.activeConnections.Range(func(_, v any) bool {
			if conn, ok := v.(net.Conn); ok {
				_ = conn.Close()
			}
			return true
		})
		return fmt.Errorf("%s: shutdown timeout, %d connections force-closed", h.cfg.HandlerName, remaining)
	}
}

// Stop triggers graceful shutdown and waits (bounded by
// cfg.ShutdownTimeout) for active connections to finish, force-closing
// any still open when the timeout expires. Safe to call more than once.
func (h *TCPSessionHandler) Stop() error {
	h.initiateShutdown()
	return h.gracefulShutdown()
}
