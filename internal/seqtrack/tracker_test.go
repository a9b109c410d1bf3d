package seqtrack

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqNumOf(t *testing.T, tracker *Tracker, h Handle) uint32 {
	t.Helper()
	var got uint32
	require.NoError(t, tracker.WithAddress(h, func(seqNum uint32) error {
		got = seqNum
		return nil
	}))
	return got
}

func TestTracker_expungeRenumbers(t *testing.T) {
	tracker := New(4)

	h2, ok := tracker.Lookup(2)
	require.True(t, ok)
	h4, ok := tracker.Lookup(4)
	require.True(t, ok)

	tracker.Expunge(2)

	err := tracker.WithAddress(h2, func(uint32) error {
		t.Fatal("fn called for a removed handle")
		return nil
	})
	assert.ErrorIs(t, err, ErrRemoved)
	assert.Equal(t, uint32(3), seqNumOf(t, tracker, h4))
	assert.Equal(t, uint32(3), tracker.Len())

	removed, err := tracker.Removed(h2)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestTracker_eventsApplyInOrder(t *testing.T) {
	tracker := New(2)
	h1, _ := tracker.Lookup(1)

	tracker.Exists(3)
	tracker.Expunge(1)
	tracker.Expunge(1)

	h3, ok := tracker.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, uint32(1), tracker.Len())
	assert.Equal(t, uint32(1), seqNumOf(t, tracker, h3))

	removed, err := tracker.Removed(h1)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestTracker_unknownExpungeIgnored(t *testing.T) {
	tracker := New(1)
	tracker.Expunge(7)
	assert.Equal(t, uint32(1), tracker.Len())
}

func TestTracker_unknownHandle(t *testing.T) {
	tracker := New(1)
	err := tracker.WithAddress(Handle(42), func(uint32) error { return nil })
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestTracker_close(t *testing.T) {
	tracker := New(1)
	h, _ := tracker.Lookup(1)
	tracker.Close()

	err := tracker.WithAddress(h, func(uint32) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)

	_, err = tracker.Refresh(h, func() error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, tracker.Closed())
}

func TestTracker_releasesLockOnError(t *testing.T) {
	tracker := New(1)
	h, _ := tracker.Lookup(1)
	boom := errors.New("boom")

	err := tracker.WithAddress(h, func(uint32) error { return boom })
	assert.ErrorIs(t, err, boom)

	// 锁必须已被释放
	assert.Equal(t, uint32(1), seqNumOf(t, tracker, h))
}

func TestTracker_refreshAppliesEventsFromFn(t *testing.T) {
	tracker := New(3)
	h3, _ := tracker.Lookup(3)

	removed, err := tracker.Refresh(h3, func() error {
		// 模拟 NOOP 期间到达的 EXPUNGE
		tracker.Expunge(3)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, removed)
}

// 在临界区内读到的序号必须与当时的映射一致，即使 EXPUNGE 并发到达。
func TestTracker_noTornAddress(t *testing.T) {
	const n = 200
	tracker := New(n)
	last, _ := tracker.Lookup(n)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n-1; i++ {
			tracker.Expunge(1)
		}
	}()

	for i := 0; i < 100; i++ {
		err := tracker.WithAddress(last, func(seqNum uint32) error {
			h, ok := tracker.lookupLocked(seqNum)
			if !ok || h != last {
				return errors.New("torn address")
			}
			return nil
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, uint32(1), seqNumOf(t, tracker, last))
}
