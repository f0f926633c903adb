package filestate

import (
	"time"

	"github.com/smbcore/smbd/internal/serrors"
)

// DefaultOplockBreakTimeout is used when a Cache is not given an explicit
// break timeout.
const DefaultOplockBreakTimeout = 10 * time.Second

// AddOplock grants level to entry, but only when open_count == 1 (the
// caller is the sole opener). Granting while more than one opener is
// present is refused rather than erroring, mirroring the state machine's
// NONE -> NONE "deny" transition.
func AddOplock(entry *FileState, level OplockLevel, ownerPID uint32, ownerSessionID uint64) (bool, error) {
	var granted bool
	var err error
	entry.withLock(func() {
		if entry.oplock != nil {
			err = serrors.NewWithPath(serrors.ErrExistingOpLock, "oplock already present", entry.path)
			return
		}
		if entry.openCountLocked() != 1 {
			granted = false
			return
		}
		entry.oplock = &OpLock{
			Type:           level,
			OwnerProcessID: ownerPID,
			OwnerSessionID: ownerSessionID,
		}
		granted = true
	})
	return granted, err
}

// ClearOplock removes entry's oplock, as happens when the owner closes its
// last handle. It returns the deferred requests that were queued on the
// oplock, if any, so the caller can re-queue them to a worker pool; they
// are returned in insertion order and cleared from the oplock.
func ClearOplock(entry *FileState) []DeferredRequest {
	var deferred []DeferredRequest
	entry.withLock(func() {
		if entry.oplock == nil {
			return
		}
		deferred = entry.oplock.DeferredSessions
		entry.oplock = nil
	})
	return deferred
}

// RequestOplockBreak enqueues a break against entry's current BATCH or
// EXCLUSIVE oplock: the deferred request is appended to the oplock's
// queue and break_time is set if this is the first pending break. It does
// not block; the response for req is emitted later when the break
// resolves or times out. Returns false if entry currently has no
// breakable oplock (NONE or LEVEL_II), in which case the caller should
// proceed without deferring.
func RequestOplockBreak(entry *FileState, req DeferredRequest) bool {
	var deferred bool
	entry.withLock(func() {
		ol := entry.oplock
		if ol == nil || (ol.Type != OplockExclusive && ol.Type != OplockBatch) {
			return
		}
		if req.QueuedAt.IsZero() {
			req.QueuedAt = time.Now()
		}
		if ol.BreakTime.IsZero() {
			ol.BreakTime = time.Now()
		}
		ol.DeferredSessions = append(ol.DeferredSessions, req)
		deferred = true
	})
	return deferred
}

// ChangeOplockType downgrades entry's oplock in response to the owner's
// break acknowledgment and returns the deferred requests queued while the
// break was pending, in insertion order, ready for requeue to a worker
// pool. newLevel is typically OplockLevelII or OplockNone.
func ChangeOplockType(entry *FileState, newLevel OplockLevel) []DeferredRequest {
	var deferred []DeferredRequest
	entry.withLock(func() {
		ol := entry.oplock
		if ol == nil {
			return
		}
		deferred = ol.DeferredSessions
		ol.DeferredSessions = nil
		ol.BreakTime = time.Time{}
		if newLevel == OplockNone {
			entry.oplock = nil
		} else {
			ol.Type = newLevel
		}
	})
	return deferred
}

// expireBreak is invoked by the break-timeout driver once
// break_time + timeout has elapsed with no acknowledgment. It fails every
// deferred request exactly once, marks the oplock break_failed, and
// drops the oplock to NONE. The caller is responsible for delivering a
// protocol error to each returned request.
func expireBreak(entry *FileState) []DeferredRequest {
	var deferred []DeferredRequest
	entry.withLock(func() {
		ol := entry.oplock
		if ol == nil || ol.BreakTime.IsZero() {
			return
		}
		deferred = ol.DeferredSessions
		ol.DeferredSessions = nil
		ol.BreakFailed = true
		entry.oplock = nil
	})
	return deferred
}

// breakDeadline returns entry's pending break deadline and whether one is
// currently outstanding.
func breakDeadline(entry *FileState, timeout time.Duration) (time.Time, bool) {
	var deadline time.Time
	var pending bool
	entry.withLock(func() {
		ol := entry.oplock
		if ol == nil || ol.BreakTime.IsZero() {
			return
		}
		deadline = ol.BreakTime.Add(timeout)
		pending = true
	})
	return deadline, pending
}
