package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process. It serves BACKEND_DRIVER=memory and tests.
type MemoryStore struct {
	notifier *LocalNotifier
	now      func() time.Time

	mu       sync.RWMutex
	docs     []Message
	writeErr error
	readErr  error
}

// NewMemoryStore creates an empty in-process document store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notifier: NewLocalNotifier(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the server clock
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailWrites makes every Create return err until cleared with nil
func (s *MemoryStore) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// FailReads makes live queries report err on their next read until cleared with nil.
// Clearing it triggers a re-read.
func (s *MemoryStore) FailReads(err error) {
	s.mu.Lock()
	s.readErr = err
	s.mu.Unlock()
	_ = s.notifier.Publish(context.Background(), CollectionMessages)
}

func (s *MemoryStore) Subscribe(q Query, onNext func(Snapshot), onError func(error)) func() {
	return liveQuery(s.notifier, CollectionMessages, s.fetch, q, onNext, onError)
}

func (s *MemoryStore) Create(ctx context.Context, collection string, fields MessageFields) (string, error) {
	if collection != CollectionMessages {
		return "", fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return "", err
	}
	ts := fields.Timestamp.resolve(s.now())
	msg := Message{
		ID:        uuid.NewString(),
		Text:      fields.Text,
		Username:  fields.Username,
		UID:       fields.UID,
		Timestamp: &ts,
	}
	s.docs = append(s.docs, msg)
	s.mu.Unlock()

	_ = s.notifier.Publish(ctx, CollectionMessages)
	return msg.ID, nil
}

// Len returns the number of stored documents
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *MemoryStore) fetch(ctx context.Context, q Query) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.readErr != nil {
		return nil, s.readErr
	}

	out := make([]Message, len(s.docs))
	copy(out, s.docs)

	// Stable sort keeps insertion order for equal timestamps
	sort.SliceStable(out, func(i, j int) bool {
		if q.Direction == Descending {
			return out[i].Timestamp.After(*out[j].Timestamp)
		}
		return out[i].Timestamp.Before(*out[j].Timestamp)
	})

	if q.LimitToLast > 0 && len(out) > q.LimitToLast {
		out = out[len(out)-q.LimitToLast:]
	}
	return out, nil
}
