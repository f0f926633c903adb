package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds the per-session, per-request attributes that should ride
// along on every log line emitted while handling a connection: which
// authority vouched for the session, which share is in play, which SMB
// command is running.
type LogContext struct {
	TraceID      string    // distributed trace ID, if tracing is wired up
	SpanID       string    // distributed span ID
	Procedure    string    // SMB command name (CREATE, READ, LOCK, ...)
	Share        string    // share name (\\srv\share)
	ClientIP     string    // client IP address, without port
	SessionID    uint64    // SrvSession identifier
	ConnectionID string    // transport-level connection identifier
	Authority    string    // passthru authority that authenticated this session
	StartTime    time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a freshly accepted connection.
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithProcedure returns a copy with the SMB command name set
func (lc *LogContext) WithProcedure(procedure string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Procedure = procedure
	}
	return clone
}

// WithShare returns a copy with the share name set
func (lc *LogContext) WithShare(share string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Share = share
	}
	return clone
}

// WithSession returns a copy with the session and connection identifiers set
func (lc *LogContext) WithSession(sessionID uint64, connectionID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.SessionID = sessionID
		clone.ConnectionID = connectionID
	}
	return clone
}

// WithAuthority returns a copy with the authenticating authority set
func (lc *LogContext) WithAuthority(authority string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Authority = authority
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
