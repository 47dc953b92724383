// Package docstore is the contract with the hosted document store: ordered live queries
// over a collection and document creation with server-assigned timestamps.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CollectionMessages is the only collection the chat room reads and writes
const CollectionMessages = "messages"

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrStreamClosed      = errors.New("change stream closed")
)

// Direction orders query results
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Query selects documents from a collection. LimitToLast keeps the final N documents
// of the ordering, so an ascending query returns the most recent window oldest first.
type Query struct {
	Collection  string
	OrderBy     string
	Direction   Direction
	LimitToLast int
}

// RecentMessages is the live query behind the message feed
func RecentMessages(limit int) Query {
	return Query{
		Collection:  CollectionMessages,
		OrderBy:     "timestamp",
		Direction:   Ascending,
		LimitToLast: limit,
	}
}

// Validate checks that a query can be served
func (q Query) Validate() error {
	if q.Collection != CollectionMessages {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, q.Collection)
	}
	if q.OrderBy != "timestamp" {
		return fmt.Errorf("%w: cannot order by %q", ErrInvalidQuery, q.OrderBy)
	}
	if q.LimitToLast < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	return nil
}

// Message is a document as read from the messages collection. Timestamp is nil while
// the server has not yet assigned it.
type Message struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	Username  string     `json:"username"`
	UID       string     `json:"uid"`
	Timestamp *time.Time `json:"timestamp"`
}

// Snapshot is the full result set of a live query at one point in time
type Snapshot struct {
	Messages []Message
}

// Timestamp is a write-side timestamp value
type Timestamp struct {
	server bool
	at     time.Time
}

// ServerTimestamp asks the store to assign its own clock at write time
var ServerTimestamp = Timestamp{server: true}

// At is an explicit client-supplied timestamp
func At(t time.Time) Timestamp {
	return Timestamp{at: t}
}

// IsServer reports whether the store assigns the value
func (ts Timestamp) IsServer() bool {
	return ts.server
}

func (ts Timestamp) resolve(now time.Time) time.Time {
	if ts.server || ts.at.IsZero() {
		return now
	}
	return ts.at
}

// MessageFields is the payload of a new message document
type MessageFields struct {
	Text      string
	Username  string
	UID       string
	Timestamp Timestamp
}

// Store is the hosted document store
type Store interface {
	// Subscribe streams full snapshots of q. The first snapshot arrives once the query
	// has been read; later snapshots follow every change. The returned function stops
	// delivery and may be called more than once.
	Subscribe(q Query, onNext func(Snapshot), onError func(error)) func()
	// Create adds a document and returns its id
	Create(ctx context.Context, collection string, fields MessageFields) (string, error)
}
