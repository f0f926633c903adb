package filestate

import "github.com/smbcore/smbd/internal/serrors"

// overlaps reports whether two byte ranges share at least one byte. A
// zero-length range covers no bytes and never overlaps anything.
func overlaps(offset1, length1, offset2, length2 uint64) bool {
	if length1 == 0 || length2 == 0 {
		return false
	}
	end1 := offset1 + length1
	end2 := offset2 + length2
	return offset1 < end2 && offset2 < end1
}

// conflicts reports whether a and b, held by different owners, cannot
// coexist: exclusive-vs-any or shared-vs-exclusive.
func conflicts(a, b *Lock) bool {
	if a.Owner == b.Owner {
		return false
	}
	if !overlaps(a.Offset, a.Length, b.Offset, b.Length) {
		return false
	}
	if a.Kind == LockExclusive || b.Kind == LockExclusive {
		return true
	}
	return false
}

// AddLock appends lock to entry's lock list if it does not conflict with
// any existing lock from a different owner. Evaluation order is insertion
// order; ties do not arise since successfully held locks are disjoint or
// share-compatible by construction.
func AddLock(entry *FileState, lock *Lock) error {
	var err error
	entry.withLock(func() {
		for _, existing := range entry.lockList {
			if conflicts(existing, lock) {
				err = serrors.NewWithPath(serrors.ErrLockConflict, "lock conflict", entry.path)
				return
			}
		}
		entry.lockList = append(entry.lockList, lock)
	})
	return err
}

// RemoveLock removes the lock matching owner+offset+length, failing
// NotLocked if no such lock is held.
func RemoveLock(entry *FileState, owner uint32, offset, length uint64) error {
	var err error
	entry.withLock(func() {
		for i, l := range entry.lockList {
			if l.Owner == owner && l.Offset == offset && l.Length == length {
				entry.lockList = append(entry.lockList[:i], entry.lockList[i+1:]...)
				return
			}
		}
		err = serrors.NewWithPath(serrors.ErrNotLocked, "not locked", entry.path)
	})
	return err
}

// RemoveOwnerLocks releases every lock held by owner on entry, as happens
// on abnormal session/file close. Errors cannot occur; there is nothing to
// swallow, but the signature mirrors the rest of the package's bulk ops.
func RemoveOwnerLocks(entry *FileState, owner uint32) {
	entry.withLock(func() {
		kept := entry.lockList[:0]
		for _, l := range entry.lockList {
			if l.Owner != owner {
				kept = append(kept, l)
			}
		}
		entry.lockList = kept
	})
}

// NumLocks reports the number of byte-range locks currently held on entry.
func NumLocks(entry *FileState) int {
	var n int
	entry.withLock(func() { n = len(entry.lockList) })
	return n
}

// HasActiveLocks reports whether entry currently holds any byte-range
// lock.
func HasActiveLocks(entry *FileState) bool {
	return NumLocks(entry) > 0
}

// CanRead reports whether pid may read [offset, offset+length) given the
// locks currently held on entry: the range must not be covered by an
// exclusive lock owned by someone else.
func CanRead(entry *FileState, offset, length uint64, pid uint32) bool {
	ok := true
	entry.withLock(func() {
		for _, l := range entry.lockList {
			if l.Owner == pid {
				continue
			}
			if l.Kind == LockExclusive && overlaps(l.Offset, l.Length, offset, length) {
				ok = false
				return
			}
		}
	})
	return ok
}

// CanWrite reports whether pid may write [offset, offset+length): no lock
// owned by someone else, shared or exclusive, may cover the range.
func CanWrite(entry *FileState, offset, length uint64, pid uint32) bool {
	ok := true
	entry.withLock(func() {
		for _, l := range entry.lockList {
			if l.Owner == pid {
				continue
			}
			if overlaps(l.Offset, l.Length, offset, length) {
				ok = false
				return
			}
		}
	})
	return ok
}
