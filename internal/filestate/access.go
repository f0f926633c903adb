package filestate

import "github.com/smbcore/smbd/internal/serrors"

// GrantAccess runs the admission rule against entry and, on success,
// installs a new AccessToken. file_status is the caller's current belief
// about filesystem existence; when not StatusUnknown it is recorded on the
// entry. The whole decision executes under the entry's own lock so it is
// atomic with respect to concurrent admission against the same path.
func GrantAccess(entry *FileState, params OpenParams, fileStatus FileStatus) (*AccessToken, error) {
	var token *AccessToken
	var err error

	entry.withLock(func() {
		token, err = grantAccessLocked(entry, params, fileStatus)
	})
	return token, err
}

func grantAccessLocked(entry *FileState, params OpenParams, fileStatus FileStatus) (*AccessToken, error) {
	if params.AttributesOnly {
		tok := &AccessToken{
			ProcessID:      params.ProcessID,
			AccessMask:     params.AccessMask,
			SharedAccess:   params.SharedAccess,
			AttributesOnly: true,
		}
		entry.accessList = append(entry.accessList, tok)
		finishGrantLocked(entry, fileStatus)
		return tok, nil
	}

	openCount := entry.openCountLocked()

	if openCount == 0 {
		entry.processID = params.ProcessID
		tok := &AccessToken{
			ProcessID:    params.ProcessID,
			AccessMask:   params.AccessMask,
			SharedAccess: params.SharedAccess,
		}
		entry.accessList = append(entry.accessList, tok)
		entry.sharedAccess = params.SharedAccess
		finishGrantLocked(entry, fileStatus)
		return tok, nil
	}

	if err := checkAdmissionLocked(entry, params); err != nil {
		return nil, err
	}

	tok := &AccessToken{
		ProcessID:    params.ProcessID,
		AccessMask:   params.AccessMask,
		SharedAccess: params.SharedAccess,
	}
	entry.accessList = append(entry.accessList, tok)
	// setSharedAccess runs on every accepted open, not only the first;
	// preserved as observed rather than "corrected" to first-opener-wins.
	entry.sharedAccess = params.SharedAccess
	finishGrantLocked(entry, fileStatus)
	return tok, nil
}

func finishGrantLocked(entry *FileState, fileStatus FileStatus) {
	if fileStatus != StatusUnknown {
		entry.fileStatus = fileStatus
	}
}

// checkAdmissionLocked applies the ordered, first-match-wins tie-break
// rules for an open arriving against an entry that already has at least
// one non-attributes-only opener.
func checkAdmissionLocked(entry *FileState, params OpenParams) error {
	if params.OpenAction == OpenActionCreate {
		return serrors.NewWithPath(serrors.ErrFileExists, "file already open", entry.path)
	}

	// delete_on_close forces exclusive regardless of share mode, ahead of
	// the read/write accept gates below — without this the invariant that
	// a pending delete always rejects a later open would not hold whenever
	// the current share mode still happens to permit the requested access.
	if entry.deleteOnClose {
		return serrors.NewWithPath(serrors.ErrSharingExclusive, "sharing, exclusive", entry.path)
	}

	if params.SecurityLevel == SecurityImpersonation && params.ProcessID == entry.processID {
		return nil
	}

	share := entry.sharedAccess

	if params.AccessMask == AccessRead && share&SharingRead != 0 {
		return nil
	}

	if params.AccessMask&AccessWrite != 0 && share&SharingWrite != 0 {
		return nil
	}

	if share == SharingNone {
		return serrors.NewWithPath(serrors.ErrSharingExclusive, "sharing, exclusive", entry.path)
	}

	if share&params.SharedAccess != params.SharedAccess {
		return serrors.NewWithPath(serrors.ErrSharingMismatch, "sharing, mismatch", entry.path)
	}

	if params.SharedAccess == SharingNone {
		return serrors.NewWithPath(serrors.ErrSharingExclusiveRequested, "sharing, exclusive requested", entry.path)
	}

	if params.SecurityLevel == SecurityAnonymous {
		return serrors.NewWithPath(serrors.ErrSharingAnonymousImpersonation, "sharing, anonymous impersonation", entry.path)
	}

	return nil
}

// ReleaseAccess removes token from entry's access list and reports the new
// open count. Releasing an already-released or unknown token is a no-op.
func ReleaseAccess(entry *FileState, token *AccessToken) int {
	var newCount int
	entry.withLock(func() {
		newCount = releaseAccessLocked(entry, token)
	})
	return newCount
}

func releaseAccessLocked(entry *FileState, token *AccessToken) int {
	if token == nil || token.Released {
		return entry.openCountLocked()
	}
	token.Released = true

	for i, t := range entry.accessList {
		if t == token {
			entry.accessList = append(entry.accessList[:i], entry.accessList[i+1:]...)
			break
		}
	}

	count := entry.openCountLocked()
	if count == 0 {
		entry.sharedAccess = SharingAll
	}
	return count
}
