package crdt

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVectorClock(t *testing.T) {
	clock := NewVectorClock()

	require.NotNil(t, clock)
	assert.NotEmpty(t, clock.GetNodeID(), "NodeID should not be empty")
	assert.Empty(t, clock.Snapshot(), "Initial clock should be empty")
}

func TestNewVectorClockWithNodeID(t *testing.T) {
	initial := map[string]int64{"node1": 3, "node2": 1}
	clock := NewVectorClockWithNodeID("node1", initial)

	require.NotNil(t, clock)
	assert.Equal(t, "node1", clock.GetNodeID())
	assert.Equal(t, initial, clock.Snapshot())

	// Исходная map не должна разделяться с часами
	initial["node1"] = 100
	assert.Equal(t, int64(3), clock.Get("node1"))
}

func TestVectorClock_Increment(t *testing.T) {
	clock := NewVectorClockWithNodeID("node1", nil)

	tests := []struct {
		name          string
		expectedValue int64
	}{
		{"First increment", 1},
		{"Second increment", 2},
		{"Third increment", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := clock.Increment()
			assert.Equal(t, tt.expectedValue, snapshot["node1"], "Increment should return bumped snapshot")
			assert.Equal(t, tt.expectedValue, clock.Get("node1"))
		})
	}
}

func TestVectorClock_Increment_ReturnsClone(t *testing.T) {
	clock := NewVectorClockWithNodeID("node1", nil)

	snapshot := clock.Increment()
	snapshot["node1"] = 42

	assert.Equal(t, int64(1), clock.Get("node1"), "Mutating snapshot must not affect the clock")
}

func TestVectorClock_Merge(t *testing.T) {
	tests := []struct {
		local    map[string]int64
		remote   map[string]int64
		expected map[string]int64
		name     string
	}{
		{
			name:     "remote ahead",
			local:    map[string]int64{"node1": 1},
			remote:   map[string]int64{"node1": 3},
			expected: map[string]int64{"node1": 3},
		},
		{
			name:     "local ahead never decreases",
			local:    map[string]int64{"node1": 5},
			remote:   map[string]int64{"node1": 2},
			expected: map[string]int64{"node1": 5},
		},
		{
			name:     "disjoint nodes",
			local:    map[string]int64{"node1": 1},
			remote:   map[string]int64{"node2": 2},
			expected: map[string]int64{"node1": 1, "node2": 2},
		},
		{
			name:     "mixed",
			local:    map[string]int64{"node1": 2, "node2": 1},
			remote:   map[string]int64{"node1": 1, "node2": 4, "node3": 1},
			expected: map[string]int64{"node1": 2, "node2": 4, "node3": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewVectorClockWithNodeID("node1", tt.local)
			clock.Merge(tt.remote)
			assert.Equal(t, tt.expected, clock.Snapshot())
		})
	}
}

func TestVectorClock_Merge_Idempotent(t *testing.T) {
	a := map[string]int64{"node1": 2, "node2": 1}
	b := map[string]int64{"node1": 1, "node2": 3, "node3": 7}

	once := MergeSnapshots(a, b)
	twice := MergeSnapshots(once, b)

	assert.Equal(t, once, twice, "merge(merge(A,B),B) must equal merge(A,B)")
}

func TestVectorClock_Merge_Commutative(t *testing.T) {
	a := map[string]int64{"node1": 2, "node2": 1}
	b := map[string]int64{"node1": 1, "node2": 3, "node3": 7}

	assert.Equal(t, MergeSnapshots(a, b), MergeSnapshots(b, a))

	clockA := NewVectorClockWithNodeID("a", a)
	clockA.Merge(b)
	clockB := NewVectorClockWithNodeID("b", b)
	clockB.Merge(a)
	assert.Equal(t, clockA.Snapshot(), clockB.Snapshot())
}

func TestVectorClock_Merge_Associative(t *testing.T) {
	a := map[string]int64{"node1": 2}
	b := map[string]int64{"node2": 3}
	c := map[string]int64{"node1": 4, "node3": 1}

	left := MergeSnapshots(MergeSnapshots(a, b), c)
	right := MergeSnapshots(a, MergeSnapshots(b, c))

	assert.Equal(t, left, right)
}

func TestHappensBefore(t *testing.T) {
	tests := []struct {
		a        map[string]int64
		b        map[string]int64
		name     string
		expected bool
	}{
		{
			name:     "strictly less",
			a:        map[string]int64{"node1": 1},
			b:        map[string]int64{"node1": 2},
			expected: true,
		},
		{
			name:     "strictly greater",
			a:        map[string]int64{"node1": 2},
			b:        map[string]int64{"node1": 1},
			expected: false,
		},
		{
			name:     "equal clocks",
			a:        map[string]int64{"node1": 1, "node2": 1},
			b:        map[string]int64{"node1": 1, "node2": 1},
			expected: false,
		},
		{
			name:     "missing key treated as zero",
			a:        map[string]int64{"node1": 1},
			b:        map[string]int64{"node1": 1, "node2": 1},
			expected: true,
		},
		{
			name:     "empty before non-empty",
			a:        map[string]int64{},
			b:        map[string]int64{"node1": 1},
			expected: true,
		},
		{
			name:     "concurrent",
			a:        map[string]int64{"node1": 2, "node2": 1},
			b:        map[string]int64{"node1": 1, "node2": 2},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HappensBefore(tt.a, tt.b))
		})
	}
}

func TestVectorClock_HappensBefore(t *testing.T) {
	clock := NewVectorClockWithNodeID("node1", map[string]int64{"node1": 1})

	assert.True(t, clock.HappensBefore(map[string]int64{"node1": 2}))

	later := NewVectorClockWithNodeID("node1", map[string]int64{"node1": 2})
	assert.False(t, later.HappensBefore(map[string]int64{"node1": 1}))
}

func TestVectorClock_Concurrent(t *testing.T) {
	clock := NewVectorClockWithNodeID("node1", map[string]int64{"node1": 2, "node2": 1})
	other := map[string]int64{"node1": 1, "node2": 2}

	assert.True(t, clock.Concurrent(other))
	assert.True(t, Concurrent(other, clock.Snapshot()))

	assert.False(t, Concurrent(map[string]int64{"node1": 1}, map[string]int64{"node1": 2}))
}

func TestVectorClock_Clone(t *testing.T) {
	clock := NewVectorClockWithNodeID("node1", map[string]int64{"node1": 1})
	clone := clock.Clone()

	clone.Increment()

	assert.Equal(t, "node1", clone.GetNodeID())
	assert.Equal(t, int64(1), clock.Get("node1"))
	assert.Equal(t, int64(2), clone.Get("node1"))
}

func TestVectorClock_Reset(t *testing.T) {
	clock := NewVectorClockWithNodeID("node1", map[string]int64{"node1": 4, "node2": 1})
	clock.Reset()

	assert.Empty(t, clock.Snapshot())
	assert.Equal(t, int64(1), clock.Increment()["node1"])
}

func TestVectorClock_ConcurrentAccess(t *testing.T) {
	clock := NewVectorClockWithNodeID("node1", nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			clock.Increment()
		}()
		go func(i int) {
			defer wg.Done()
			clock.Merge(map[string]int64{"node" + strconv.Itoa(i%5+2): int64(i)})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(50), clock.Get("node1"))
}
