package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLake_Queue_LazyLatestWins(t *testing.T) {
	t.Parallel()
	q := NewLazy()
	q.Put([]byte("first"))
	q.Put([]byte("second"))
	require.Equal(t, 1, q.Length())
	require.Equal(t, []byte("second"), q.Get())
	require.Equal(t, 0, q.Length())
}

func TestLake_Queue_LazyGetBlocksUntilPut(t *testing.T) {
	t.Parallel()
	q := NewLazy()
	done := make(chan []byte, 1)
	go func() { done <- q.Get() }()

	select {
	case <-done:
		t.Fatal("Get returned before Put")
	case <-time.After(20 * time.Millisecond):
	}
	q.Put([]byte("value"))
	require.Equal(t, []byte("value"), <-done)
}

func TestLake_Queue_FIFODropsOldestOnOverflow(t *testing.T) {
	t.Parallel()
	q := NewFIFO(2)
	q.Put([]byte("a"))
	q.Put([]byte("b"))
	q.Put([]byte("c")) // drops "a"
	require.Equal(t, 2, q.Length())
	require.Equal(t, []byte("b"), q.Get())
	require.Equal(t, []byte("c"), q.Get())
}

func TestLake_Queue_PersistentSurvivesReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	q1, err := NewPersistent(dir, "telemetry/gps", 10)
	require.NoError(t, err)
	q1.Put([]byte("one"))
	q1.Put([]byte("two"))
	require.NoError(t, q1.Close())

	q2, err := NewPersistent(dir, "telemetry/gps", 10)
	require.NoError(t, err)
	require.Equal(t, 2, q2.Length())
	require.Equal(t, []byte("one"), q2.Get())
	require.Equal(t, []byte("two"), q2.Get())
}

func TestLake_Queue_PersistentDropsOldestOnOverflow(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	q, err := NewPersistent(dir, "ch", 2)
	require.NoError(t, err)
	q.Put([]byte("a"))
	q.Put([]byte("b"))
	q.Put([]byte("c"))
	require.Equal(t, 2, q.Length())
	require.Equal(t, []byte("b"), q.Get())
	require.Equal(t, []byte("c"), q.Get())
}
