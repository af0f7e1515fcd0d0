package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndCount(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	raw := []byte(`{"event":"test_event"}`)
	id, err := m.InsertEvent(ctx, "test_event", map[string]string{"key1": "value1"}, raw)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = m.InsertEvent(ctx, "other", nil, nil)
	require.NoError(t, err)

	n, err := m.CountEvents(ctx, "test_event")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// the store keeps its own copy of the body
	raw[0] = 'X'
	events := m.Events()
	require.Len(t, events, 2)
	assert.Equal(t, `{"event":"test_event"}`, string(events[0].Raw))
	assert.Equal(t, "value1", events[0].Properties["key1"])
}

func TestInsertEvent_RequiresName(t *testing.T) {
	_, err := NewMemoryStore().InsertEvent(context.Background(), "", nil, nil)
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Ping(ctx))

	m.Close()
	assert.Error(t, m.Ping(ctx))
	_, err := m.InsertEvent(ctx, "test_event", nil, nil)
	assert.Error(t, err)
}

func TestConcurrentInserts(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.InsertEvent(ctx, "test_event", nil, nil)
		}()
	}
	wg.Wait()

	n, err := m.CountEvents(ctx, "test_event")
	require.NoError(t, err)
	assert.EqualValues(t, 50, n)
}
