package secevent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_DropsOldestBatch(t *testing.T) {
	s := NewMemoryStore(10, 4)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Append(ctx, Event{ID: fmt.Sprint(i), Timestamp: base.Add(time.Duration(i) * time.Second)}))
	}
	assert.Equal(t, 10, s.Len())

	require.NoError(t, s.Append(ctx, Event{ID: "10", Timestamp: base.Add(10 * time.Second)}))
	assert.Equal(t, 7, s.Len())

	events, err := s.Events(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "4", events[0].ID)
	assert.Equal(t, "10", events[len(events)-1].ID)
}

func TestMemoryStore_EventsSince(t *testing.T) {
	s := NewMemoryStore(100, 10)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, Event{ID: fmt.Sprint(i), Timestamp: base.Add(time.Duration(i) * time.Hour)}))
	}

	events, err := s.Events(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "2", events[0].ID)

	n, err := s.DeleteBefore(ctx, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, s.Len())
}
