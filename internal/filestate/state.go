package filestate

import (
	"sync"
	"time"
)

// FileStatus is the cache's belief about whether path exists on the
// backing filesystem.
type FileStatus int

const (
	StatusUnknown FileStatus = iota
	StatusFileExists
	StatusDirectoryExists
	StatusNotExists
)

// ChangeReason explains a FileStatus transition for listener callbacks.
type ChangeReason int

const (
	ChangeNone ChangeReason = iota
	ChangeFileCreated
	ChangeFolderCreated
	ChangeFileDeleted
	ChangeFolderDeleted
)

// DataStatus tracks the lifecycle of cached file content/metadata
// associated with this entry. The cache itself never drives these
// transitions; callers record them.
type DataStatus int

const (
	DataUnknown DataStatus = iota
	DataLoadWait
	DataLoading
	DataAvailable
	DataUpdated
	DataSaveWait
	DataSaving
	DataSaved
	DataDeleted
	DataRenamed
	DataDeleteOnClose
)

// Sentinels for unset numeric fields.
const (
	UnknownFileID  int64 = -1
	NoTimeout      int64 = -1 // expiry_time sentinel: never expires
	NoRetention    int64 = -1
	UnsetSize      int64 = -1
)

// SharingMode is the bitmask governing what later concurrent opens may do.
type SharingMode uint32

const (
	SharingNone  SharingMode = 0
	SharingRead  SharingMode = 1 << 0
	SharingWrite SharingMode = 1 << 1
	SharingDelete SharingMode = 1 << 2
	// SharingAll is the effective mode of a file nobody holds open.
	SharingAll = SharingRead | SharingWrite | SharingDelete
)

// AccessMask is the subset of the requested access mask this package cares
// about for admission decisions (read/write distinction, nothing more —
// the full NTFS-style mask belongs to the wire decoder).
type AccessMask uint32

const (
	AccessRead AccessMask = 1 << iota
	AccessWrite
)

// SecurityLevel mirrors the impersonation levels distinguished for the
// same-process-reopen tie-break during admission.
type SecurityLevel int

const (
	SecurityAnonymous SecurityLevel = iota
	SecurityIdentification
	SecurityImpersonation
	SecurityDelegation
)

// OpenAction is the disposition requested by an open.
type OpenAction int

const (
	OpenActionOpen OpenAction = iota
	OpenActionCreate
	OpenActionOverwrite
)

// OpenParams is the admission-relevant subset of an open request.
type OpenParams struct {
	ProcessID      uint32
	AccessMask     AccessMask
	SharedAccess   SharingMode
	AttributesOnly bool
	OpenAction     OpenAction
	SecurityLevel  SecurityLevel
}

// AccessToken is returned to the caller on a successful grant and must be
// handed back on close.
type AccessToken struct {
	ProcessID      uint32
	AccessMask     AccessMask
	SharedAccess   SharingMode
	AttributesOnly bool
	Released       bool
}

// Lock is one byte-range lock record.
type Lock struct {
	Offset  uint64
	Length  uint64
	Owner   uint32 // owner_process_id
	Kind    LockKind
}

// LockKind distinguishes shared (read) from exclusive (write) byte-range
// locks.
type LockKind int

const (
	LockShared LockKind = iota
	LockExclusive
)

// OplockLevel is the oplock state machine's current level.
type OplockLevel int

const (
	OplockNone OplockLevel = iota
	OplockLevelII
	OplockExclusive
	OplockBatch
)

func (l OplockLevel) String() string {
	switch l {
	case OplockNone:
		return "None"
	case OplockLevelII:
		return "Level-II"
	case OplockExclusive:
		return "Exclusive"
	case OplockBatch:
		return "Batch"
	default:
		return "Unknown"
	}
}

// DeferredRequest is a (session, packet) pair blocked on an in-flight
// oplock break. Packet is opaque to this package; the wire layer supplies
// whatever it needs to resume or fail the request.
type DeferredRequest struct {
	SessionID uint64
	Packet    any
	QueuedAt  time.Time
}

// OpLock is the single oplock a FileState may hold.
type OpLock struct {
	Type              OplockLevel
	OwnerProcessID    uint32
	OwnerSessionID    uint64
	BreakTime         time.Time // zero when no break is pending
	DeferredSessions  []DeferredRequest
	BreakFailed       bool
}

// FileState is the cache entry for one normalized path.
type FileState struct {
	mu sync.Mutex

	path       string
	fileStatus FileStatus
	fileID     int64

	expiryTime     int64 // absolute ms, NoTimeout sentinel
	retentionUntil int64 // absolute ms, NoRetention sentinel

	accessList     []*AccessToken
	sharedAccess   SharingMode
	deleteOnClose  bool
	processID      uint32 // process id of the first/opening token

	lockList []*Lock
	oplock   *OpLock

	pseudoFiles []PseudoFile
	attributes  map[string]any

	fileSize, allocSize                int64
	accessTime, modifyTime, changeTime int64

	dataStatus DataStatus
}

// PseudoFile is a synthetic child-file descriptor a folder's cache entry
// may expose.
type PseudoFile struct {
	Name string
	Size int64
}

// NewFileState constructs an entry for path with the given initial status.
// Callers should go through Cache.FindOrCreate rather than calling this
// directly, so the entry is installed into the cache's map atomically with
// construction.
func NewFileState(path string, status FileStatus) *FileState {
	return &FileState{
		path:         path,
		fileStatus:   status,
		fileID:       UnknownFileID,
		expiryTime:   NoTimeout,
		retentionUntil: NoRetention,
		sharedAccess: SharingAll,
		fileSize:     UnsetSize,
		allocSize:    UnsetSize,
	}
}

// Path returns the entry's normalized path.
func (fs *FileState) Path() string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.path
}

// FileStatus returns the entry's current belief about existence.
func (fs *FileState) FileStatus() FileStatus {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.fileStatus
}

// SetFileStatus records a status transition. reason is informational only
// (forwarded to listeners); the cache does not derive it.
func (fs *FileState) SetFileStatus(status FileStatus, _ ChangeReason) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.fileStatus = status
}

// FileID returns the entry's opaque file id, or UnknownFileID.
func (fs *FileState) FileID() int64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.fileID
}

// SetFileID sets the entry's opaque file id.
func (fs *FileState) SetFileID(id int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.fileID = id
}

// OpenCount returns the number of access-list tokens that are not
// attributes-only.
func (fs *FileState) OpenCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.openCountLocked()
}

func (fs *FileState) openCountLocked() int {
	n := 0
	for _, t := range fs.accessList {
		if !t.AttributesOnly && !t.Released {
			n++
		}
	}
	return n
}

// EffectiveSharing returns the entry's currently effective sharing mode:
// ALL when open_count==0, else the entry's recorded sharedAccess, forced
// to NOSHARING by delete_on_close.
func (fs *FileState) EffectiveSharing() SharingMode {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.effectiveSharingLocked()
}

func (fs *FileState) effectiveSharingLocked() SharingMode {
	if fs.deleteOnClose {
		return SharingNone
	}
	if fs.openCountLocked() == 0 {
		return SharingAll
	}
	return fs.sharedAccess
}

// DeleteOnClose reports whether this entry is marked for deletion once its
// last handle closes.
func (fs *FileState) DeleteOnClose() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.deleteOnClose
}

// SetDeleteOnClose marks (or clears) the delete-on-close flag.
func (fs *FileState) SetDeleteOnClose(v bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.deleteOnClose = v
}

// ExpiryTime returns the absolute-ms expiry deadline, or NoTimeout.
func (fs *FileState) ExpiryTime() int64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.expiryTime
}

// SetExpiryTime sets the absolute-ms expiry deadline.
func (fs *FileState) SetExpiryTime(ms int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.expiryTime = ms
}

// RetentionUntil returns the absolute-ms retention deadline, or
// NoRetention.
func (fs *FileState) RetentionUntil() int64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.retentionUntil
}

// SetRetentionUntil sets the absolute-ms retention deadline.
func (fs *FileState) SetRetentionUntil(ms int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.retentionUntil = ms
}

// Sizes returns (file_size, alloc_size); UnsetSize when not recorded.
func (fs *FileState) Sizes() (int64, int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.fileSize, fs.allocSize
}

// SetSizes records file/alloc size.
func (fs *FileState) SetSizes(fileSize, allocSize int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.fileSize = fileSize
	fs.allocSize = allocSize
}

// Times returns (access, modify, change) times in ms; 0 means unset.
func (fs *FileState) Times() (int64, int64, int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.accessTime, fs.modifyTime, fs.changeTime
}

// SetTimes records access/modify/change times.
func (fs *FileState) SetTimes(access, modify, change int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.accessTime = access
	fs.modifyTime = modify
	fs.changeTime = change
}

// DataStatus returns the entry's cached-content lifecycle state.
func (fs *FileState) DataStatus() DataStatus {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.dataStatus
}

// SetDataStatus records the cached-content lifecycle state.
func (fs *FileState) SetDataStatus(s DataStatus) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.dataStatus = s
}

// Attribute fetches an opaque keyed attribute; the backing map is
// allocated lazily on first SetAttribute.
func (fs *FileState) Attribute(key string) (any, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.attributes == nil {
		return nil, false
	}
	v, ok := fs.attributes[key]
	return v, ok
}

// SetAttribute stores an opaque keyed attribute.
func (fs *FileState) SetAttribute(key string, value any) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.attributes == nil {
		fs.attributes = make(map[string]any)
	}
	fs.attributes[key] = value
}

// PseudoFiles returns the entry's synthetic child descriptors, or nil if
// none have been added.
func (fs *FileState) PseudoFiles() []PseudoFile {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]PseudoFile(nil), fs.pseudoFiles...)
}

// AddPseudoFile appends a synthetic child descriptor, allocating the slice
// on first use.
func (fs *FileState) AddPseudoFile(pf PseudoFile) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.pseudoFiles = append(fs.pseudoFiles, pf)
}

// AccessList returns a snapshot of the entry's open tokens.
func (fs *FileState) AccessList() []*AccessToken {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]*AccessToken(nil), fs.accessList...)
}

// Oplock returns the entry's current oplock, or nil if none is held.
func (fs *FileState) Oplock() *OpLock {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.oplock
}

// withLock invokes fn with the entry's monitor held, so all FileState
// mutation serializes on the entry's own lock. Used internally by the
// lock/oplock and admission logic in this package to read-modify-write
// several fields atomically; callers outside this package should prefer
// the narrower accessor methods above.
func (fs *FileState) withLock(fn func()) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fn()
}
