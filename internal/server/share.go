package server

// NetworkFile is the downward interface the core holds onto an open
// network file handle; file state, locking, and the buffer pool all deal
// in these rather than a concrete filesystem handle.
type NetworkFile interface {
	// FileState returns a weak back-reference to the owning file-state
	// entry.
	FileState() any

	AddLock(lock any)
	RemoveLock(lock any) bool
	NumLocks() int
	LockAt(index int) (any, bool)
	HasLocks() bool

	Close() error
}

// SharedDevice is an opaque handle to a share a ShareMapper resolved;
// this package never inspects its contents.
type SharedDevice any

// ShareMapper resolves share names to concrete shares and tracks which
// shares a session created dynamically, so they can be torn down when
// the session closes.
type ShareMapper interface {
	// FindShare resolves name for host/session, optionally creating a
	// dynamic share (e.g. a printer queue or a per-user home share) when
	// create is true. Returns nil if no share matches.
	FindShare(host, name, shareType string, sess *SrvSession, create bool) SharedDevice

	// ShareList enumerates shares visible to host/session. Hidden shares
	// (names ending in '$') are included only when includeHidden is set.
	ShareList(host string, sess *SrvSession, includeHidden bool) []SharedDevice

	// DeleteShares tears down every dynamic share sess created. Called
	// from SrvSession.Close.
	DeleteShares(sess *SrvSession)
}
