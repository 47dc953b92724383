// Package feed keeps the live window of recent chat messages for one view
package feed

import (
	"sync"

	"cio-chat/backend/internal/docstore"
	"cio-chat/backend/pkg/logger"
)

// DefaultWindow is the number of most recent messages kept in view
const DefaultWindow = 50

// Feed mirrors the latest snapshot of the recent-messages query
type Feed struct {
	window   int
	onChange func([]docstore.Message)
	log      *logger.Logger

	mu       sync.Mutex
	messages []docstore.Message
	stop     func()
	stopped  bool
}

// New creates a feed that calls onChange with every new list. window <= 0 uses DefaultWindow.
func New(window int, onChange func([]docstore.Message), log *logger.Logger) *Feed {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Feed{
		window:   window,
		onChange: onChange,
		log:      log.WithComponent("feed"),
	}
}

// Start subscribes to store. A nil store leaves the feed empty and silent.
func (f *Feed) Start(store docstore.Store) {
	if store == nil {
		return
	}

	f.mu.Lock()
	if f.stop != nil || f.stopped {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	stop := store.Subscribe(docstore.RecentMessages(f.window), f.apply, f.fail)

	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		stop()
		return
	}
	f.stop = stop
	f.mu.Unlock()
}

// Stop unsubscribes. It is safe to call more than once, or before Start.
func (f *Feed) Stop() {
	f.mu.Lock()
	stop := f.stop
	f.stop = nil
	f.stopped = true
	f.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Messages returns a copy of the current list
func (f *Feed) Messages() []docstore.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyMessages(f.messages)
}

// Anchor returns the id of the newest message, the position the view scrolls to
func (f *Feed) Anchor() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1].ID
}

func (f *Feed) apply(snap docstore.Snapshot) {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	msgs := snap.Messages
	if len(msgs) > f.window {
		msgs = msgs[len(msgs)-f.window:]
	}
	f.messages = copyMessages(msgs)
	out := copyMessages(f.messages)
	f.mu.Unlock()

	if f.onChange != nil {
		f.onChange(out)
	}
}

func (f *Feed) fail(err error) {
	f.log.LogError(err, "Message subscription error, keeping last list")
}

func copyMessages(msgs []docstore.Message) []docstore.Message {
	out := make([]docstore.Message, len(msgs))
	copy(out, msgs)
	return out
}
