package filestate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_FindOrCreate_CreatesOnceThenFinds(t *testing.T) {
	c, err := NewCache(Config{})
	require.NoError(t, err)

	entry := c.FindOrCreate(`\srv\f.txt`, StatusFileExists)
	require.NotNil(t, entry)

	again := c.Find(`\SRV\F.TXT`)
	assert.Same(t, entry, again)
}

func TestCache_Remove(t *testing.T) {
	c, err := NewCache(Config{})
	require.NoError(t, err)

	c.FindOrCreate(`\srv\f.txt`, StatusFileExists)
	removed := c.Remove(`\srv\f.txt`)
	require.NotNil(t, removed)
	assert.Nil(t, c.Find(`\srv\f.txt`))
}

func TestCache_Rename_OldKeyGoneNewKeyPresent(t *testing.T) {
	c, err := NewCache(Config{})
	require.NoError(t, err)

	entry := c.FindOrCreate(`\srv\old.txt`, StatusFileExists)
	require.NoError(t, c.Rename(`\srv\new.txt`, entry, false))

	assert.Nil(t, c.Find(`\srv\old.txt`))
	assert.Same(t, entry, c.Find(`\srv\new.txt`))
}

func TestCache_Rename_FailsWhenTargetOccupiedByAnotherEntry(t *testing.T) {
	c, err := NewCache(Config{})
	require.NoError(t, err)

	a := c.FindOrCreate(`\srv\a.txt`, StatusFileExists)
	c.FindOrCreate(`\srv\b.txt`, StatusFileExists)

	err = c.Rename(`\srv\b.txt`, a, false)
	require.Error(t, err)
}

func TestCache_RemoveAll_EmptiesCache(t *testing.T) {
	c, err := NewCache(Config{})
	require.NoError(t, err)

	c.FindOrCreate(`\srv\a.txt`, StatusFileExists)
	c.FindOrCreate(`\srv\b.txt`, StatusFileExists)
	c.RemoveAll()

	assert.Nil(t, c.Find(`\srv\a.txt`))
	assert.Nil(t, c.Find(`\srv\b.txt`))
}

func TestCache_SweepExpired_NeverEvictsEntryWithOpenHandles(t *testing.T) {
	c, err := NewCache(Config{})
	require.NoError(t, err)

	entry := c.FindOrCreate(`\srv\a.txt`, StatusFileExists)
	_, err = GrantAccess(entry, OpenParams{ProcessID: 1, AccessMask: AccessRead, SharedAccess: SharingAll}, StatusUnknown)
	require.NoError(t, err)
	entry.SetExpiryTime(time.Now().Add(-time.Hour).UnixMilli())

	n := c.SweepExpired()
	assert.Equal(t, 0, n)
	assert.NotNil(t, c.Find(`\srv\a.txt`))
}

func TestCache_SweepExpired_NeverEvictsEntryWithActiveLocks(t *testing.T) {
	c, err := NewCache(Config{})
	require.NoError(t, err)

	entry := c.FindOrCreate(`\srv\a.txt`, StatusFileExists)
	require.NoError(t, AddLock(entry, &Lock{Offset: 0, Length: 10, Owner: 1, Kind: LockExclusive}))
	entry.SetExpiryTime(time.Now().Add(-time.Hour).UnixMilli())

	n := c.SweepExpired()
	assert.Equal(t, 0, n)
}

func TestCache_SweepExpired_NeverEvictsEntryWithRetention(t *testing.T) {
	c, err := NewCache(Config{})
	require.NoError(t, err)

	entry := c.FindOrCreate(`\srv\a.txt`, StatusFileExists)
	entry.SetExpiryTime(time.Now().Add(-time.Hour).UnixMilli())
	entry.SetRetentionUntil(time.Now().Add(time.Hour).UnixMilli())

	n := c.SweepExpired()
	assert.Equal(t, 0, n)
}

func TestCache_SweepExpired_EvictsQuiescentExpiredEntry(t *testing.T) {
	c, err := NewCache(Config{})
	require.NoError(t, err)

	c.FindOrCreate(`\srv\a.txt`, StatusFileExists)
	entry := c.Find(`\srv\a.txt`)
	entry.SetExpiryTime(time.Now().Add(-time.Hour).UnixMilli())

	n := c.SweepExpired()
	assert.Equal(t, 1, n)
	assert.Nil(t, c.Find(`\srv\a.txt`))
}

func TestCache_SweepExpired_NeverEvictsEntryWithNoTimeoutSentinel(t *testing.T) {
	c, err := NewCache(Config{})
	require.NoError(t, err)

	c.FindOrCreate(`\srv\a.txt`, StatusFileExists)
	n := c.SweepExpired()
	assert.Equal(t, 0, n)
}

type recordingListener struct {
	created, closed, expired []string
}

func (l *recordingListener) Created(e *FileState) { l.created = append(l.created, e.Path()) }
func (l *recordingListener) Closed(e *FileState)   { l.closed = append(l.closed, e.Path()) }
func (l *recordingListener) Expired(e *FileState)  { l.expired = append(l.expired, e.Path()) }

func TestCache_ListenerReceivesCreateCloseExpired(t *testing.T) {
	listener := &recordingListener{}
	c, err := NewCache(Config{Listener: listener})
	require.NoError(t, err)

	c.FindOrCreate(`\srv\a.txt`, StatusFileExists)
	assert.Equal(t, []string{`\SRV\A.TXT`}, listener.created)

	c.Remove(`\srv\a.txt`)
	assert.Equal(t, []string{`\SRV\A.TXT`}, listener.closed)

	entry := c.FindOrCreate(`\srv\b.txt`, StatusFileExists)
	entry.SetExpiryTime(time.Now().Add(-time.Hour).UnixMilli())
	c.SweepExpired()
	assert.Equal(t, []string{`\SRV\B.TXT`}, listener.expired)
}

type recordingDispatcher struct {
	failed []DeferredRequest
}

func (d *recordingDispatcher) Requeue(req DeferredRequest)          {}
func (d *recordingDispatcher) Fail(req DeferredRequest, err error) { d.failed = append(d.failed, req) }

func TestCache_StartShutdown_RunsBackgroundJobsWithoutPanicking(t *testing.T) {
	c, err := NewCache(Config{ExpireInterval: MinExpireInterval, OplockBreakTimeout: 2 * time.Second, BreakDispatcher: &recordingDispatcher{}})
	require.NoError(t, err)
	require.NoError(t, c.Start())
	require.NoError(t, c.Shutdown())
}
