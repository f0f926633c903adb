package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// These keys are protocol-agnostic so the same attributes can be emitted
// by the SMB wire layer, the DCE/RPC pipes, and the core session engine.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// Protocol & Operation
	// ========================================================================
	KeyProtocol  = "protocol"
	KeyProcedure = "procedure"
	KeyShare     = "share"
	KeyStatus    = "status"
	KeyStatusMsg = "status_msg"

	// ========================================================================
	// Path / File State
	// ========================================================================
	KeyPath    = "path"
	KeyOldPath = "old_path"
	KeyNewPath = "new_path"
	KeyFileID  = "file_id"

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientIP = "client_ip"
	KeyUsername = "username"
	KeyDomain   = "domain"
	KeyUID      = "uid"
	KeyGID      = "gid"

	// ========================================================================
	// Session & Connection
	// ========================================================================
	KeySessionID    = "session_id"
	KeyConnectionID = "connection_id"
	KeyProcessID    = "process_id"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"

	// ========================================================================
	// Sharing / Locking / Oplocks
	// ========================================================================
	KeyAccessMask   = "access_mask"
	KeySharedAccess = "shared_access"
	KeyOpenCount    = "open_count"
	KeyLockOffset   = "lock_offset"
	KeyLockLength   = "lock_length"
	KeyLockOwner    = "lock_owner"
	KeyOplockType   = "oplock_type"
	KeyAuthority    = "authority"
	KeyHandle       = "handle"
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }
func SpanID(id string) slog.Attr  { return slog.String(KeySpanID, id) }

func Protocol(proto string) slog.Attr  { return slog.String(KeyProtocol, proto) }
func Procedure(name string) slog.Attr  { return slog.String(KeyProcedure, name) }
func Share(name string) slog.Attr      { return slog.String(KeyShare, name) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func StatusMsg(msg string) slog.Attr   { return slog.String(KeyStatusMsg, msg) }

func Path(p string) slog.Attr    { return slog.String(KeyPath, p) }
func OldPath(p string) slog.Attr { return slog.String(KeyOldPath, p) }
func NewPath(p string) slog.Attr { return slog.String(KeyNewPath, p) }
func FileID(id int64) slog.Attr  { return slog.Int64(KeyFileID, id) }

func ClientIP(addr string) slog.Attr { return slog.String(KeyClientIP, addr) }
func Username(name string) slog.Attr { return slog.String(KeyUsername, name) }
func Domain(name string) slog.Attr   { return slog.String(KeyDomain, name) }

func SessionID(id uint64) slog.Attr    { return slog.Uint64(KeySessionID, id) }
func ConnectionID(id string) slog.Attr { return slog.String(KeyConnectionID, id) }
func ProcessID(id uint32) slog.Attr    { return slog.Any(KeyProcessID, id) }

func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error, tolerating a nil error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

func AccessMask(mask uint32) slog.Attr     { return slog.Any(KeyAccessMask, mask) }
func SharedAccess(mode uint32) slog.Attr   { return slog.Any(KeySharedAccess, mode) }
func OpenCount(n int) slog.Attr            { return slog.Int(KeyOpenCount, n) }
func LockOffset(off uint64) slog.Attr      { return slog.Uint64(KeyLockOffset, off) }
func LockLength(length uint64) slog.Attr   { return slog.Uint64(KeyLockLength, length) }
func LockOwner(owner uint32) slog.Attr     { return slog.Any(KeyLockOwner, owner) }
func OplockType(t string) slog.Attr        { return slog.String(KeyOplockType, t) }
func Authority(name string) slog.Attr      { return slog.String(KeyAuthority, name) }

// Handle returns a slog.Attr for an opaque handle formatted as hex.
func Handle(h []byte) slog.Attr {
	return slog.String(KeyHandle, fmt.Sprintf("%x", h))
}
