package activity

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_IDsStrictlyIncreasing(t *testing.T) {
	l := NewLog()

	prev := 0
	for i := 0; i < 10; i++ {
		id := l.Add(EventToolCall, SourcePrimary, fmt.Sprintf("call %d", i), "", nil)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestAdd_RingEvictsButNeverReusesIDs(t *testing.T) {
	l := NewLog()

	var last int
	for i := 0; i < Capacity+50; i++ {
		last = l.Add(EventAnalysis, SourceSystem, "tick", "", nil)
	}
	assert.Equal(t, Capacity, l.Len())
	assert.Equal(t, Capacity+50, last)

	recent := l.Recent(0, 1)
	require.Len(t, recent, 1)
	assert.Equal(t, last, recent[0].ID)
}

func TestAdd_TruncatesDetail(t *testing.T) {
	l := NewLog()
	l.Add(EventToolCall, SourcePrimary, "big", strings.Repeat("x", 2*MaxDetailLen), nil)

	recent := l.Recent(0, 1)
	require.Len(t, recent, 1)
	assert.Len(t, recent[0].Detail, MaxDetailLen)
}

func TestRecent_CursorAndLimit(t *testing.T) {
	l := NewLog()
	for i := 0; i < 20; i++ {
		l.Add(EventToolCall, SourcePrimary, fmt.Sprintf("call %d", i), "", nil)
	}

	page := l.Recent(15, 100)
	require.Len(t, page, 5)
	// Newest first.
	assert.Equal(t, 20, page[0].ID)
	assert.Equal(t, 16, page[4].ID)

	capped := l.Recent(0, 3)
	assert.Len(t, capped, 3)
	assert.Equal(t, 20, capped[0].ID)
}

func TestAdd_ConcurrentIDsUnique(t *testing.T) {
	l := NewLog()

	const n = 100
	ids := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- l.Add(EventToolCall, SourceBackground, "concurrent", "", nil)
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int]bool{}
	for id := range ids {
		assert.False(t, seen[id], "id %d reused", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}
