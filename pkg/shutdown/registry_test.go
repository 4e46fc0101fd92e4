package shutdown

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLake_Shutdown_OrdersDescendingPriority(t *testing.T) {
	t.Parallel()
	r := New()
	var order []string
	r.Register("low", 1, func() { order = append(order, "low") })
	r.Register("high", 10, func() { order = append(order, "high") })
	r.Register("mid", 5, func() { order = append(order, "mid") })
	r.Shutdown()
	require.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestLake_Shutdown_NegativePriorityRunsLast(t *testing.T) {
	t.Parallel()
	r := New()
	var order []string
	r.Register("eventloop", EventLoopPriority, func() { order = append(order, "eventloop") })
	r.Register("adapter", 0, func() { order = append(order, "adapter") })
	r.Register("source", 10, func() { order = append(order, "source") })
	r.Shutdown()
	require.Equal(t, []string{"source", "adapter", "eventloop"}, order)
}

func TestLake_Shutdown_IsIdempotent(t *testing.T) {
	t.Parallel()
	r := New()
	calls := 0
	r.Register("once", 0, func() { calls++ })
	r.Shutdown()
	r.Shutdown()
	require.Equal(t, 1, calls)
}

func TestLake_Shutdown_RegisterAfterShutdownRunsImmediately(t *testing.T) {
	t.Parallel()
	r := New()
	r.Shutdown()
	ran := false
	r.Register("late", 0, func() { ran = true })
	require.True(t, ran)
}
