package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smbcore/smbd/internal/logger"
	"github.com/smbcore/smbd/internal/serrors"
)

// ServerListener receives NetworkServer lifecycle events. At most one may
// be registered; nil is a valid no-op listener.
type ServerListener interface {
	OnStartup(srv *NetworkServer)
	OnActive(srv *NetworkServer)
	OnShutdown(srv *NetworkServer)
	OnError(srv *NetworkServer, err error)
}

// SessionListener receives SrvSession lifecycle events. Any number may be
// registered; they are invoked in registration order. A panic in one
// listener is not recovered: it propagates to the caller and the
// listeners after it are not invoked.
type SessionListener interface {
	OnSessionCreated(sess *SrvSession)
	OnLoggedOn(sess *SrvSession)
	OnSessionClosed(sess *SrvSession)
}

// Config configures a NetworkServer.
type Config struct {
	// ProtocolName identifies the protocol this server instance serves
	// (e.g. "SMB2"), for logging and handler dispatch.
	ProtocolName string

	// MaxSessions is stored from configuration. NetworkServer does not
	// enforce it: every accepted connection is registered as a session
	// whatever its value.
	MaxSessions int

	// ShutdownTimeout is stored from configuration (default 10s).
	// ShutdownServer does not read it; each handler's Stop applies that
	// handler's own shutdown timeout.
	ShutdownTimeout time.Duration

	// MetricsLogInterval, if positive, logs periodic runtime metrics at
	// this interval. Zero disables periodic logging.
	MetricsLogInterval time.Duration

	Listener         ServerListener
	SessionListeners []SessionListener
}

func (c *Config) setDefaults() {
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// NetworkServer is the protocol-agnostic lifecycle holder: it owns the
// handler registry and session list, fires startup/active/shutdown/error
// events through its ServerListener, and fires session_created/
// logged_on/closed events through its SessionListener list in
// registration order.
type NetworkServer struct {
	cfg Config

	handlers *HandlerList
	sessions *SessionList

	enabled atomic.Bool
	active  atomic.Bool

	wg   sync.WaitGroup
	once sync.Once
}

// New constructs a NetworkServer. It is enabled but not active until
// StartServer is called.
func New(cfg Config) *NetworkServer {
	cfg.setDefaults()
	srv := &NetworkServer{
		cfg:      cfg,
		handlers: NewHandlerList(),
		sessions: NewSessionList(),
	}
	srv.enabled.Store(true)
	return srv
}

// Handlers returns the server's handler registry, for callers to
// register SessionHandler/DatagramHandler/ChannelHandler instances
// before calling StartServer.
func (srv *NetworkServer) Handlers() *HandlerList { return srv.handlers }

// Sessions returns the server's session registry.
func (srv *NetworkServer) Sessions() *SessionList { return srv.sessions }

// ProtocolName returns the configured protocol name.
func (srv *NetworkServer) ProtocolName() string { return srv.cfg.ProtocolName }

// IsEnabled reports whether the server is administratively enabled.
// Disabling (via Disable) prevents StartServer from accepting new
// handlers' connections without tearing down existing state.
func (srv *NetworkServer) IsEnabled() bool { return srv.enabled.Load() }

// IsActive reports whether StartServer has completed and ShutdownServer
// has not yet been called.
func (srv *NetworkServer) IsActive() bool { return srv.active.Load() }

// Disable marks the server administratively disabled. It does not stop
// already-running handlers; combine with ShutdownServer for that.
func (srv *NetworkServer) Disable() { srv.enabled.Store(false) }

// BoundAddresses returns the bound address of every registered handler
// that has one (datagram/channel handlers not yet started report "").
func (srv *NetworkServer) BoundAddresses() []string {
	handlers := srv.handlers.List()
	out := make([]string, 0, len(handlers))
	for _, h := range handlers {
		out = append(out, h.BoundAddress())
	}
	return out
}

// StartServer starts every registered handler, each on its own goroutine,
// and fires OnStartup then OnActive once all handlers have begun. A
// handler's Start error is reported through OnError and does not abort
// the other handlers.
func (srv *NetworkServer) StartServer(ctx context.Context) error {
	if !srv.enabled.Load() {
		return serrors.New(serrors.ErrInvalidConfiguration, "server is disabled")
	}

	srv.fireStartup()

	handlers := srv.handlers.List()
	for _, h := range handlers {
		h := h
		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()
			if err := h.Start(ctx, srv); err != nil {
				srv.fireError(err)
			}
		}()
	}

	srv.active.Store(true)
	srv.fireActive()

	if srv.cfg.MetricsLogInterval > 0 {
		go srv.logMetrics(ctx)
	}

	return nil
}

// ShutdownServer stops every registered handler by calling its Stop, so
// each handler's configured shutdown timeout applies. The immediate flag
// does not change this; both values shut down the same way.
// ShutdownServer blocks until every handler's Start call has returned.
func (srv *NetworkServer) ShutdownServer(immediate bool) error {
	var shutdownErr error
	srv.once.Do(func() {
		for _, h := range srv.handlers.List() {
			if err := h.Stop(); err != nil {
				logger.Warn("handler stop error", "handler", h.Name(), logger.Err(err))
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}
		srv.active.Store(false)
		srv.fireShutdown()
	})
	srv.wg.Wait()
	return shutdownErr
}

// newSession mints a SrvSession, registers it in the session list, and
// fires OnSessionCreated to every registered SessionListener in order.
func (srv *NetworkServer) newSession(protocol, remoteAddr, remoteName string, shareMapper ShareMapper) *SrvSession {
	id := srv.sessions.GenerateID()
	sess := newSrvSession(id, 0, protocol, remoteAddr, remoteName, shareMapper)
	srv.sessions.Add(sess)

	for _, l := range srv.cfg.SessionListeners {
		l.OnSessionCreated(sess)
	}
	return sess
}

// LogonCompleted records the authenticated identity on sess and fires
// OnLoggedOn to every registered SessionListener in order. Protocol
// handlers call this once their SESSION_SETUP exchange succeeds.
func (srv *NetworkServer) LogonCompleted(sess *SrvSession, client ClientInfo) {
	sess.SetLoggedOn(client)
	for _, l := range srv.cfg.SessionListeners {
		l.OnLoggedOn(sess)
	}
}

// closeSession closes sess, removes it from the session list, and fires
// OnSessionClosed to every registered SessionListener in order.
func (srv *NetworkServer) closeSession(sess *SrvSession) {
	sess.Close()
	srv.sessions.Remove(sess.SessionID())
	for _, l := range srv.cfg.SessionListeners {
		l.OnSessionClosed(sess)
	}
}

func (srv *NetworkServer) fireStartup() {
	if srv.cfg.Listener != nil {
		srv.cfg.Listener.OnStartup(srv)
	}
}

func (srv *NetworkServer) fireActive() {
	if srv.cfg.Listener != nil {
		srv.cfg.Listener.OnActive(srv)
	}
}

func (srv *NetworkServer) fireShutdown() {
	if srv.cfg.Listener != nil {
		srv.cfg.Listener.OnShutdown(srv)
	}
}

func (srv *NetworkServer) fireError(err error) {
	logger.Error("server handler error", logger.Err(err))
	if srv.cfg.Listener != nil {
		srv.cfg.Listener.OnError(srv, err)
	}
}

func (srv *NetworkServer) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(srv.cfg.MetricsLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("server metrics", "active_sessions", srv.sessions.Len())
		}
	}
}
