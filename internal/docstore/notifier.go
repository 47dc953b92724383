package docstore

import (
	"context"
	"sync"
)

// Notifier fans change signals out to live queries. Signals carry no payload: subscribers
// re-read the query. Several signals may coalesce into one.
type Notifier interface {
	Publish(ctx context.Context, channel string) error
	Subscribe(ctx context.Context, channel string) (<-chan struct{}, func(), error)
}

// LocalNotifier is an in-process Notifier for single-instance deployments
type LocalNotifier struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan struct{}
	nextID int
}

// NewLocalNotifier creates an in-process Notifier
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[string]map[int]chan struct{})}
}

// Publish signals every subscriber of channel without blocking
func (n *LocalNotifier) Publish(ctx context.Context, channel string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs[channel] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscribe registers for signals on channel until release is called or ctx ends
func (n *LocalNotifier) Subscribe(ctx context.Context, channel string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	if n.subs[channel] == nil {
		n.subs[channel] = make(map[int]chan struct{})
	}
	n.subs[channel][id] = ch
	n.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[channel], id)
			if len(n.subs[channel]) == 0 {
				delete(n.subs, channel)
			}
			n.mu.Unlock()
		})
	}

	go func() {
		<-ctx.Done()
		release()
	}()

	return ch, release, nil
}
