package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"cio-chat/backend/internal/docstore"
	"cio-chat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextList(t *testing.T, ch <-chan []docstore.Message) []docstore.Message {
	t.Helper()
	select {
	case l := <-ch:
		return l
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message list")
		return nil
	}
}

func post(t *testing.T, store *docstore.MemoryStore, text string, at time.Time) {
	t.Helper()
	_, err := store.Create(context.Background(), docstore.CollectionMessages, docstore.MessageFields{
		Text: text, Username: "ada", UID: "u1", Timestamp: docstore.At(at),
	})
	require.NoError(t, err)
}

func TestNilStoreNeverEmits(t *testing.T) {
	calls := 0
	f := New(0, func([]docstore.Message) { calls++ }, logger.Nop())
	f.Start(nil)
	f.Stop()

	assert.Zero(t, calls)
	assert.Empty(t, f.Messages())
	assert.Empty(t, f.Anchor())
}

func TestSnapshotsReplaceList(t *testing.T) {
	store := docstore.NewMemoryStore()
	lists := make(chan []docstore.Message, 10)
	f := New(0, func(m []docstore.Message) { lists <- m }, logger.Nop())
	f.Start(store)
	defer f.Stop()

	assert.Empty(t, nextList(t, lists))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	post(t, store, "first", base)
	assert.Len(t, nextList(t, lists), 1)

	post(t, store, "second", base.Add(time.Second))
	l := nextList(t, lists)
	require.Len(t, l, 2)
	assert.Equal(t, "first", l[0].Text)
	assert.Equal(t, "second", l[1].Text)
	assert.Equal(t, l[1].ID, f.Anchor())
}

func TestWindowCapsAtMostRecent(t *testing.T) {
	store := docstore.NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < DefaultWindow+5; i++ {
		post(t, store, fmt.Sprintf("m%02d", i), base.Add(time.Duration(i)*time.Second))
	}

	lists := make(chan []docstore.Message, 1)
	f := New(0, func(m []docstore.Message) { lists <- m }, logger.Nop())
	f.Start(store)
	defer f.Stop()

	l := nextList(t, lists)
	require.Len(t, l, DefaultWindow)
	assert.Equal(t, "m05", l[0].Text)
	assert.Equal(t, fmt.Sprintf("m%02d", DefaultWindow+4), l[len(l)-1].Text)
}

func TestErrorKeepsLastList(t *testing.T) {
	store := docstore.NewMemoryStore()
	post(t, store, "kept", time.Now())

	lists := make(chan []docstore.Message, 10)
	f := New(0, func(m []docstore.Message) { lists <- m }, logger.Nop())
	f.Start(store)
	defer f.Stop()
	require.Len(t, nextList(t, lists), 1)

	store.FailReads(errors.New("permission denied"))
	time.Sleep(20 * time.Millisecond)

	msgs := f.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "kept", msgs[0].Text)
	assert.Len(t, lists, 0)
}

func TestMessagesReturnsCopy(t *testing.T) {
	store := docstore.NewMemoryStore()
	post(t, store, "original", time.Now())

	lists := make(chan []docstore.Message, 1)
	f := New(0, func(m []docstore.Message) { lists <- m }, logger.Nop())
	f.Start(store)
	defer f.Stop()
	nextList(t, lists)

	msgs := f.Messages()
	msgs[0].Text = "mutated"
	assert.Equal(t, "original", f.Messages()[0].Text)
}

func TestStopIsIdempotentAndSilences(t *testing.T) {
	store := docstore.NewMemoryStore()
	lists := make(chan []docstore.Message, 10)
	f := New(0, func(m []docstore.Message) { lists <- m }, logger.Nop())

	f.Stop()
	f.Start(store)
	f.Stop()

	post(t, store, "ignored", time.Now())
	assert.Never(t, func() bool { return len(lists) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}
