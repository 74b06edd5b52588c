package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetBasic(t *testing.T) {
	s := &Store{}

	s.Set("show_item4", true)

	v, ok := s.Get("show_item4")
	require.True(t, ok)
	assert.Equal(t, true, v)
}

func TestGetMissing(t *testing.T) {
	s := &Store{}

	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestNewSeedsCopy(t *testing.T) {
	initial := map[string]any{"player2_score": 0}
	s := New(initial)

	initial["player2_score"] = 99

	v, ok := s.Get("player2_score")
	require.True(t, ok)
	assert.Equal(t, 0, v)
}

func TestDelete(t *testing.T) {
	s := &Store{}

	s.Set("k", "v")
	s.Delete("k")

	_, ok := s.Get("k")
	assert.False(t, ok)
}

func TestDeleteNonexistent(t *testing.T) {
	s := &Store{}
	// Should not panic.
	s.Delete("nope")
}

func TestSnapshotIsolated(t *testing.T) {
	s := &Store{}

	s.Set("x", 10)
	s.Set("y", 20)

	snap := s.Snapshot()
	assert.Equal(t, map[string]any{"x": 10, "y": 20}, snap)

	snap["z"] = 30
	_, ok := s.Get("z")
	assert.False(t, ok)
}

func TestGetDeepCopiesByteSlice(t *testing.T) {
	s := &Store{}
	s.Set("bytes", []byte("hello"))

	v, ok := s.Get("bytes")
	require.True(t, ok)
	v.([]byte)[0] = 'X'

	v2, _ := s.Get("bytes")
	assert.Equal(t, []byte("hello"), v2.([]byte))
}

func TestAdd(t *testing.T) {
	s := &Store{}

	v, err := s.Add("score", 100)
	require.NoError(t, err)
	assert.Equal(t, 100, v)

	v, err = s.Add("score", 50)
	require.NoError(t, err)
	assert.Equal(t, 150, v)

	s.Set("ratio", 1.5)
	v, err = s.Add("ratio", 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, v, 0.0001)
}

func TestAddNotNumeric(t *testing.T) {
	s := &Store{}
	s.Set("name", "ada")

	_, err := s.Add("name", 1)
	require.ErrorIs(t, err, ErrNotNumeric)
}

func TestOnChange(t *testing.T) {
	s := &Store{}

	var changes []Change
	s.OnChange(func(c Change) { changes = append(changes, c) })

	s.Set("score", 10)
	s.Set("score", 25)
	s.Set("show_item4", true)
	_, err := s.Add("score", 5)
	require.NoError(t, err)
	s.Delete("show_item4")
	s.Delete("never_set")

	require.Len(t, changes, 5)
	assert.Equal(t, Change{Key: "score", Value: 10, Prev: nil, Change: float64(10)}, changes[0])
	assert.Equal(t, Change{Key: "score", Value: 25, Prev: 10, Change: float64(15)}, changes[1])
	assert.Equal(t, Change{Key: "show_item4", Value: true, Prev: nil, Change: true}, changes[2])
	assert.Equal(t, Change{Key: "score", Value: 30, Prev: 25, Change: 5}, changes[3])
	assert.Equal(t, Change{Key: "show_item4", Prev: true, Change: true}, changes[4])
}

func TestOnChangeMayReadStore(t *testing.T) {
	s := &Store{}

	var seen any
	s.OnChange(func(c Change) { seen, _ = s.Get(c.Key) })

	s.Set("k", "v")
	assert.Equal(t, "v", seen)
}

func TestConcurrentReadWrite(t *testing.T) {
	s := &Store{}

	var wg sync.WaitGroup

	for i := range 50 {
		wg.Go(func() {
			s.Set("key", i)
			_, _ = s.Add("counter", 1)
		})
	}

	for range 50 {
		wg.Go(func() {
			s.Get("key")
			s.Snapshot()
		})
	}

	wg.Wait()

	v, ok := s.Get("counter")
	require.True(t, ok)
	assert.Equal(t, 50, v)
}
