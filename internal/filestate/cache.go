package filestate

import (
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/smbcore/smbd/internal/logger"
	"github.com/smbcore/smbd/internal/serrors"
)

// Defaults for the background sweeper and oplock break driver.
const (
	DefaultExpireInterval = 60 * time.Second
	MinExpireInterval     = 5 * time.Second
)

// FileStateListener receives per-entry lifecycle callbacks. At most one
// may be registered on a Cache.
type FileStateListener interface {
	Created(entry *FileState)
	Closed(entry *FileState)
	Expired(entry *FileState)
}

// FileStateCacheListener receives cache-wide lifecycle callbacks. At most
// one may be registered on a Cache.
type FileStateCacheListener interface {
	Started()
	Shutdown()
}

// OplockBreakDispatcher delivers the outcome of a resolved or timed-out
// oplock break to the wire layer that originally deferred the request.
// The cache never inspects req.Packet itself.
type OplockBreakDispatcher interface {
	// Requeue resubmits a deferred request once the break it was waiting
	// on has resolved (downgrade acknowledged or owner closed).
	Requeue(req DeferredRequest)
	// Fail delivers a protocol-level failure for a request whose break
	// timed out without acknowledgment.
	Fail(req DeferredRequest, err error)
}

// Config configures a Cache.
type Config struct {
	CaseSensitive      bool
	ExpireInterval     time.Duration
	OplockBreakTimeout time.Duration
	Debug              bool
	DebugExpired       bool
	DumpOnShutdown     bool
	Listener           FileStateListener
	CacheListener      FileStateCacheListener
	BreakDispatcher    OplockBreakDispatcher
}

func (c *Config) setDefaults() {
	if c.ExpireInterval <= 0 {
		c.ExpireInterval = DefaultExpireInterval
	}
	if c.ExpireInterval < MinExpireInterval {
		c.ExpireInterval = MinExpireInterval
	}
	if c.OplockBreakTimeout <= 0 {
		c.OplockBreakTimeout = DefaultOplockBreakTimeout
	}
}

// Cache is the process-wide file-state cache: a keyed store mapping
// normalized path to FileState, with background expiry and oplock
// break-timeout sweeping, listener notification, and a configurable
// case-sensitivity policy.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*FileState

	cfg       Config
	scheduler gocron.Scheduler
}

// NewCache constructs a Cache. The background sweeper and break driver
// are not started until Start is called.
func NewCache(cfg Config) (*Cache, error) {
	cfg.setDefaults()

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, serrors.New(serrors.ErrInvalidConfiguration, "create scheduler: "+err.Error())
	}

	c := &Cache{
		entries:   make(map[string]*FileState),
		cfg:       cfg,
		scheduler: scheduler,
	}
	return c, nil
}

// Start launches the expiry sweeper and oplock break driver as scheduled
// jobs and fires the cache listener's Started callback.
func (c *Cache) Start() error {
	if _, err := c.scheduler.NewJob(
		gocron.DurationJob(c.cfg.ExpireInterval),
		gocron.NewTask(func() { c.SweepExpired() }),
		gocron.WithName("filestate-expiry-sweep"),
	); err != nil {
		return serrors.New(serrors.ErrInvalidConfiguration, "schedule expiry sweep: "+err.Error())
	}

	breakInterval := c.cfg.OplockBreakTimeout / 2
	if breakInterval < time.Second {
		breakInterval = time.Second
	}
	if _, err := c.scheduler.NewJob(
		gocron.DurationJob(breakInterval),
		gocron.NewTask(func() { c.sweepOplockBreaks() }),
		gocron.WithName("filestate-oplock-break-driver"),
	); err != nil {
		return serrors.New(serrors.ErrInvalidConfiguration, "schedule oplock break driver: "+err.Error())
	}

	c.scheduler.Start()
	if c.cfg.CacheListener != nil {
		c.cfg.CacheListener.Started()
	}
	return nil
}

// Shutdown stops the background jobs and fires the cache listener's
// Shutdown callback. If Config.DumpOnShutdown is set, the current entry
// count is logged before teardown.
func (c *Cache) Shutdown() error {
	if c.cfg.DumpOnShutdown {
		c.mu.Lock()
		n := len(c.entries)
		c.mu.Unlock()
		logger.Info("filestate: cache shutdown", "entries", n)
	}

	err := c.scheduler.Shutdown()
	if c.cfg.CacheListener != nil {
		c.cfg.CacheListener.Shutdown()
	}
	return err
}

func (c *Cache) normalize(path string) string {
	return NormalizePath(path, c.cfg.CaseSensitive)
}

// Find returns the entry for path, or nil if no entry exists.
func (c *Cache) Find(path string) *FileState {
	key := c.normalize(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key]
}

// FindOrCreate returns the existing entry for path, or creates one with
// the given initial status if absent.
func (c *Cache) FindOrCreate(path string, status FileStatus) *FileState {
	key := c.normalize(path)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = NewFileState(key, status)
		c.entries[key] = entry
	}
	c.mu.Unlock()

	if !ok {
		if c.cfg.Debug {
			logger.Debug("filestate: created entry", "path", key)
		}
		if c.cfg.Listener != nil {
			c.cfg.Listener.Created(entry)
		}
	}
	return entry
}

// Remove deletes the entry for path and returns it, or nil if absent.
func (c *Cache) Remove(path string) *FileState {
	key := c.normalize(path)
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if ok && c.cfg.Listener != nil {
		c.cfg.Listener.Closed(entry)
	}
	return entry
}

// Rename retires entry's current key and installs it under newPath. The
// third argument (isDir) is ignored. Fails if newPath is already occupied
// by a different entry.
func (c *Cache) Rename(newPath string, entry *FileState, _ bool) error {
	newKey := c.normalize(newPath)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[newKey]; ok && existing != entry {
		return serrors.NewWithPath(serrors.ErrAlreadyExists, "rename target already occupied", newKey)
	}

	oldKey := entry.Path()
	delete(c.entries, oldKey)
	entry.withLock(func() { entry.path = newKey })
	c.entries[newKey] = entry
	return nil
}

// RemoveAll empties the cache without invoking listeners or evaluating
// quiescence; intended for shutdown/reset.
func (c *Cache) RemoveAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*FileState)
}

// SweepExpired evicts every quiescent entry whose expiry deadline has
// passed and returns the number evicted. An entry is quiescent when it
// has no open handles, no active byte-range locks, no active oplock, and
// no outstanding retention.
func (c *Cache) SweepExpired() int {
	now := time.Now().UnixMilli()

	var victims []*FileState
	c.mu.Lock()
	for key, entry := range c.entries {
		if isExpirableLocked(entry, now) {
			delete(c.entries, key)
			victims = append(victims, entry)
		}
	}
	c.mu.Unlock()

	if c.cfg.DebugExpired && len(victims) > 0 {
		logger.Debug("filestate: expiry sweep evicted entries", "count", len(victims))
	}

	if c.cfg.Listener != nil {
		for _, v := range victims {
			c.cfg.Listener.Expired(v)
		}
	}
	return len(victims)
}

// PendingBreakCount returns the number of entries with an oplock break
// currently outstanding, for metrics.
func (c *Cache) PendingBreakCount() int {
	c.mu.Lock()
	entries := make([]*FileState, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	n := 0
	for _, e := range entries {
		if _, pending := breakDeadline(e, c.cfg.OplockBreakTimeout); pending {
			n++
		}
	}
	return n
}

func isExpirableLocked(entry *FileState, now int64) bool {
	expirable := false
	entry.withLock(func() {
		if entry.expiryTime == NoTimeout || entry.expiryTime >= now {
			return
		}
		if entry.openCountLocked() > 0 {
			return
		}
		if len(entry.lockList) > 0 {
			return
		}
		if entry.oplock != nil {
			return
		}
		if entry.retentionUntil != NoRetention && entry.retentionUntil > now {
			return
		}
		expirable = true
	})
	return expirable
}

// sweepOplockBreaks fails every deferred request whose oplock break has
// outlived OplockBreakTimeout, exactly once per request, and hands them to
// the configured OplockBreakDispatcher.
func (c *Cache) sweepOplockBreaks() {
	if c.cfg.BreakDispatcher == nil {
		return
	}

	now := time.Now()

	c.mu.Lock()
	entries := make([]*FileState, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	for _, entry := range entries {
		deadline, pending := breakDeadline(entry, c.cfg.OplockBreakTimeout)
		if !pending || now.Before(deadline) {
			continue
		}
		failed := expireBreak(entry)
		if c.cfg.Debug {
			logger.Debug("filestate: oplock break timed out", "path", entry.Path(), "deferred", len(failed))
		}
		for _, req := range failed {
			c.cfg.BreakDispatcher.Fail(req, serrors.NewWithPath(serrors.ErrOplockBreakTimeout, "oplock break timed out", entry.Path()))
		}
	}
}
