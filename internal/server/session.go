package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ClientInfo carries the identity a session authenticated as, populated
// once logon completes.
type ClientInfo struct {
	Username     string
	Domain       string
	Guest        bool
	OSVersion    string
	NativeLanMan string
}

// PostProcessor is queued work a session runs after its current request
// finishes (e.g. a deferred oplock-break response delivery).
type PostProcessor func()

// SrvSession holds per-connection state: identity, protocol, timestamps,
// the authentication context (cleared once logon completes), and the
// dynamic shares and deferred post-processors the session owns.
type SrvSession struct {
	uniqueID   string
	sessionID  uint64
	processID  uint32
	protocol   string
	remoteAddr string
	remoteName string

	shareMapper ShareMapper

	mu             sync.Mutex
	loggedOn       bool
	persistent     bool
	disconnectedAt time.Time
	lastIOTime     time.Time
	shuttingDown   bool
	authContext    any
	client         ClientInfo
	dynamicShares  []SharedDevice
	postProcessors []PostProcessor
}

func newSrvSession(sessionID uint64, processID uint32, protocol, remoteAddr, remoteName string, shareMapper ShareMapper) *SrvSession {
	return &SrvSession{
		uniqueID:    uuid.NewString(),
		sessionID:   sessionID,
		processID:   processID,
		protocol:    protocol,
		remoteAddr:  remoteAddr,
		remoteName:  remoteName,
		shareMapper: shareMapper,
		lastIOTime:  time.Now(),
	}
}

// UniqueID returns the random UUID assigned when this SrvSession was
// created; every new SrvSession gets a new one.
func (s *SrvSession) UniqueID() string { return s.uniqueID }

// SessionID returns the protocol-level integer session id.
func (s *SrvSession) SessionID() uint64 { return s.sessionID }

// ProcessID returns the client process id presented at connection setup.
func (s *SrvSession) ProcessID() uint32 { return s.processID }

// Protocol returns the protocol name this session was created under
// (e.g. "SMB2").
func (s *SrvSession) Protocol() string { return s.protocol }

// RemoteAddr returns the client's transport address.
func (s *SrvSession) RemoteAddr() string { return s.remoteAddr }

// RemoteName returns the client's NetBIOS/DNS name, if known.
func (s *SrvSession) RemoteName() string { return s.remoteName }

// IsLoggedOn reports whether SetLoggedOn has completed for this session.
func (s *SrvSession) IsLoggedOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedOn
}

// SetLoggedOn records the authenticated identity and clears the
// authentication context — once logged on, a session never needs its
// passthru/NTLM exchange state again.
func (s *SrvSession) SetLoggedOn(client ClientInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedOn = true
	s.client = client
	s.authContext = nil
}

// ClientInfo returns the identity SetLoggedOn recorded. Zero value before
// logon completes.
func (s *SrvSession) ClientInfo() ClientInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// IsPersistent reports whether this session survives transport
// disconnects (SMB3 persistent/durable handles).
func (s *SrvSession) IsPersistent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistent
}

// SetPersistent marks the session as persistent or not.
func (s *SrvSession) SetPersistent(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistent = v
}

// MarkDisconnected records the transport disconnect time without closing
// the session, for the persistent-session reconnect grace period.
func (s *SrvSession) MarkDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectedAt = time.Now()
}

// DisconnectedAt returns the zero time if the session is still connected.
func (s *SrvSession) DisconnectedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectedAt
}

// Touch records I/O activity for idle-timeout tracking.
func (s *SrvSession) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastIOTime = time.Now()
}

// LastIOTime returns the last time Touch was called.
func (s *SrvSession) LastIOTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastIOTime
}

// IsShuttingDown reports whether Close has been invoked on this session.
func (s *SrvSession) IsShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

// AuthContext returns the in-flight authentication handshake state (e.g.
// a passthru pending-logon key), or nil once logon completed or none was
// ever set.
func (s *SrvSession) AuthContext() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authContext
}

// SetAuthContext stores in-flight authentication handshake state.
func (s *SrvSession) SetAuthContext(ctx any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authContext = ctx
}

// AddDynamicShare records a share this session caused to be created
// (e.g. a printer queue opened on demand), so Close can tear it down.
func (s *SrvSession) AddDynamicShare(share SharedDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dynamicShares = append(s.dynamicShares, share)
}

// QueuePostProcessor appends work to run after the session's current
// request finishes — a deferred oplock-break response delivery, for
// instance.
func (s *SrvSession) QueuePostProcessor(p PostProcessor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postProcessors = append(s.postProcessors, p)
}

// RunPostProcessors drains and runs every queued post-processor, in
// insertion order.
func (s *SrvSession) RunPostProcessors() {
	s.mu.Lock()
	pending := s.postProcessors
	s.postProcessors = nil
	s.mu.Unlock()

	for _, p := range pending {
		p()
	}
}

// Close marks the session as shutting down and deletes any dynamic
// shares it created via the share-mapper. Safe to call more than once.
func (s *SrvSession) Close() {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return
	}
	s.shuttingDown = true
	s.authContext = nil
	s.mu.Unlock()

	if s.shareMapper != nil {
		s.shareMapper.DeleteShares(s)
	}
}

// SessionList is the process-wide registry of sessions keyed by id.
// Enumeration produces a stable snapshot taken atomically under the
// list's lock, rather than a live iterator — a snapshot that a caller
// can safely range over while other goroutines add or remove sessions.
type SessionList struct {
	mu       sync.Mutex
	sessions map[uint64]*SrvSession
	nextID   atomic.Uint64
}

// NewSessionList constructs an empty registry. Session ids start at 1;
// id 0 is reserved for pre-authentication bookkeeping.
func NewSessionList() *SessionList {
	l := &SessionList{sessions: make(map[uint64]*SrvSession)}
	l.nextID.Store(1)
	return l
}

// GenerateID reserves the next session id.
func (l *SessionList) GenerateID() uint64 {
	return l.nextID.Add(1) - 1
}

// Add registers sess under its SessionID.
func (l *SessionList) Add(sess *SrvSession) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions[sess.SessionID()] = sess
}

// Get returns the session for id, or nil if absent.
func (l *SessionList) Get(id uint64) *SrvSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessions[id]
}

// Remove deletes the session for id and returns it, or nil if absent.
// Does not call SrvSession.Close — callers close first, then remove (or
// vice versa) depending on whether they need one more lookup.
func (l *SessionList) Remove(id uint64) *SrvSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	sess := l.sessions[id]
	delete(l.sessions, id)
	return sess
}

// Snapshot returns every registered session as of the moment the lock
// was held, safe to range over without racing concurrent Add/Remove.
func (l *SessionList) Snapshot() []*SrvSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*SrvSession, 0, len(l.sessions))
	for _, s := range l.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the current number of registered sessions.
func (l *SessionList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}
