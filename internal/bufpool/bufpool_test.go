package bufpool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smbcore/smbd/internal/serrors"
)

func testConfig() Config {
	mk := func(size, initAlloc, maxAlloc int) TierConfig {
		return TierConfig{Size: size, InitAllocations: initAlloc, MaxAllocations: maxAlloc}
	}
	return Config{
		Small:  mk(64, 1, 2),
		Medium: mk(256, 1, 2),
		Large:  mk(1024, 1, 2),
	}
}

func TestAllocate_SelectsSmallestFittingTier(t *testing.T) {
	p := NewPool(testConfig())

	buf, err := p.Allocate(10, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, len(buf))
	assert.Equal(t, 64, cap(buf))

	buf2, err := p.Allocate(100, 0)
	require.NoError(t, err)
	assert.Equal(t, 256, cap(buf2))
}

func TestAllocate_RequestedSizeTooLarge(t *testing.T) {
	p := NewPool(testConfig())

	_, err := p.Allocate(2000, 0)
	require.Error(t, err)
	code, ok := serrors.Code(err)
	require.True(t, ok)
	assert.Equal(t, serrors.ErrRequestedSizeTooLarge, code)
}

func TestAllocate_NonBlockingFailsWhenExhausted(t *testing.T) {
	p := NewPool(testConfig())

	_, err := p.Allocate(10, 0)
	require.NoError(t, err)
	_, err = p.Allocate(10, 0)
	require.NoError(t, err)

	_, err = p.Allocate(10, 0)
	require.Error(t, err)
	code, _ := serrors.Code(err)
	assert.Equal(t, serrors.ErrNoPooledMemory, code)
}

func TestAllocate_BlocksUntilRelease(t *testing.T) {
	p := NewPool(testConfig())

	buf1, err := p.Allocate(10, 0)
	require.NoError(t, err)
	_, err = p.Allocate(10, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var gotErr error
	go func() {
		defer wg.Done()
		_, gotErr = p.Allocate(10, 500*time.Millisecond)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Release(buf1))
	wg.Wait()
	assert.NoError(t, gotErr)
}

func TestAllocate_TimesOut(t *testing.T) {
	p := NewPool(testConfig())

	_, err := p.Allocate(10, 0)
	require.NoError(t, err)
	_, err = p.Allocate(10, 0)
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Allocate(10, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	code, _ := serrors.Code(err)
	assert.Equal(t, serrors.ErrNoPooledMemory, code)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestRelease_SizeMismatchIsError(t *testing.T) {
	p := NewPool(testConfig())

	bogus := make([]byte, 10, 17)
	err := p.Release(bogus)
	require.Error(t, err)
}

func TestRelease_NilIsNoop(t *testing.T) {
	p := NewPool(testConfig())
	assert.NoError(t, p.Release(nil))
}

func TestShrink_ReturnsToInitAllocations(t *testing.T) {
	p := NewPool(testConfig())

	buf1, _ := p.Allocate(10, 0)
	buf2, _ := p.Allocate(10, 0)
	require.NoError(t, p.Release(buf1))
	require.NoError(t, p.Release(buf2))

	before := p.Stats()[0]
	assert.Equal(t, 2, before.Allocated)

	p.Shrink()
	after := p.Stats()[0]
	assert.Equal(t, 1, after.Allocated)
}

func TestStats_OutstandingTracksInFlightAllocations(t *testing.T) {
	p := NewPool(testConfig())

	buf, err := p.Allocate(10, 0)
	require.NoError(t, err)

	stats := p.Stats()[0]
	assert.Equal(t, 1, stats.Outstanding)

	require.NoError(t, p.Release(buf))
	stats = p.Stats()[0]
	assert.Equal(t, 0, stats.Outstanding)
}

func TestNewPool_DefaultsWhenZeroConfig(t *testing.T) {
	p := NewPool(Config{})
	buf, err := p.Allocate(10, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultSmallSize, cap(buf))
}
