package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RecordedEvent is one request body accepted by the stub server.
type RecordedEvent struct {
	ID         string
	Name       string
	Properties map[string]string
	Raw        []byte
	ReceivedAt time.Time
}

// MemoryStore keeps received events for the lifetime of the stub process.
// It is safe for concurrent use by gin handlers.
type MemoryStore struct {
	mu     sync.RWMutex
	events []RecordedEvent
	closed bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Ping is used by the readiness endpoint.
func (m *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errors.New("store closed")
	}
	return nil
}

// Close marks the store unusable. Later inserts fail.
func (m *MemoryStore) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// InsertEvent records an event and returns the ID assigned to it.
// raw is copied so callers may reuse their buffer.
func (m *MemoryStore) InsertEvent(
	ctx context.Context,
	eventName string,
	properties map[string]string,
	raw []byte,
) (string, error) {

	if eventName == "" {
		return "", errors.New("eventName required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	props := make(map[string]string, len(properties))
	for k, v := range properties {
		props[k] = v
	}
	ev := RecordedEvent{
		ID:         uuid.NewString(),
		Name:       eventName,
		Properties: props,
		Raw:        append([]byte(nil), raw...),
		ReceivedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", errors.New("store closed")
	}
	m.events = append(m.events, ev)
	return ev.ID, nil
}

// CountEvents returns how many events named eventName were recorded.
func (m *MemoryStore) CountEvents(ctx context.Context, eventName string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, ev := range m.events {
		if ev.Name == eventName {
			n++
		}
	}
	return n, nil
}

// Events returns a snapshot of everything recorded so far, oldest first.
func (m *MemoryStore) Events() []RecordedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedEvent, len(m.events))
	copy(out, m.events)
	return out
}
