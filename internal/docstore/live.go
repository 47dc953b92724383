package docstore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// minRefreshInterval spaces re-reads of one live query; signals that arrive in between
// coalesce into the next read
const minRefreshInterval = 50 * time.Millisecond

type fetchFunc func(ctx context.Context, q Query) ([]Message, error)

type subscription struct {
	stopped atomic.Bool
	// mu serializes callbacks so snapshots arrive in read order
	mu      sync.Mutex
	onNext  func(Snapshot)
	onError func(error)
}

func (s *subscription) next(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped.Load() && s.onNext != nil {
		s.onNext(snap)
	}
}

func (s *subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped.Load() && s.onError != nil {
		s.onError(err)
	}
}

// liveQuery re-reads q after every change signal on channel and streams the results
func liveQuery(notifier Notifier, channel string, fetch fetchFunc, q Query, onNext func(Snapshot), onError func(error)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{onNext: onNext, onError: onError}

	stop := func() {
		sub.stopped.Store(true)
		cancel()
	}

	if err := q.Validate(); err != nil {
		go sub.fail(err)
		return stop
	}

	// Subscribe before the first read so no change between the two is missed
	events, release, err := notifier.Subscribe(ctx, channel)
	if err != nil {
		go sub.fail(err)
		return stop
	}

	refresh := func() {
		msgs, err := fetch(ctx, q)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			sub.fail(err)
			return
		}
		sub.next(Snapshot{Messages: msgs})
	}

	pace := rate.NewLimiter(rate.Every(minRefreshInterval), 1)

	go func() {
		defer release()
		refresh()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					sub.fail(ErrStreamClosed)
					return
				}
				if err := pace.Wait(ctx); err != nil {
					return
				}
				refresh()
			}
		}
	}()

	return stop
}

func changeChannel(namespace, collection string) string {
	if namespace == "" {
		return collection
	}
	return namespace + ":" + collection
}
