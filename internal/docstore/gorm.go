package docstore

import (
	"context"
	"fmt"
	"time"

	"cio-chat/backend/internal/models"
	"cio-chat/backend/pkg/logger"
	"cio-chat/backend/pkg/resilience"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStore is the hosted document store adapter backed by the messages table.
// Writes publish a change signal on the notifier so that every instance re-reads its
// live queries.
type GormStore struct {
	db        *gorm.DB
	notifier  Notifier
	namespace string
	writes    *resilience.CircuitBreaker
	log       *logger.Logger
}

// NewGormStore creates the hosted document store adapter. namespace scopes change signals,
// typically to the project id.
func NewGormStore(db *gorm.DB, notifier Notifier, namespace string, log *logger.Logger) *GormStore {
	return &GormStore{
		db:        db,
		notifier:  notifier,
		namespace: namespace,
		writes:    resilience.NewCircuitBreaker(resilience.DefaultConfig("docstore.writes"), log),
		log:       log.WithComponent("docstore.gorm"),
	}
}

// Migrate creates or updates the messages table
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&models.Message{})
}

func (s *GormStore) Subscribe(q Query, onNext func(Snapshot), onError func(error)) func() {
	return liveQuery(s.notifier, changeChannel(s.namespace, q.Collection), s.fetch, q, onNext, onError)
}

func (s *GormStore) Create(ctx context.Context, collection string, fields MessageFields) (string, error) {
	if collection != CollectionMessages {
		return "", fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}

	id := uuid.NewString()
	row := map[string]any{
		"id":         id,
		"text":       fields.Text,
		"username":   fields.Username,
		"uid":        fields.UID,
		"created_at": time.Now().UTC(),
	}
	if fields.Timestamp.IsServer() {
		row["timestamp"] = gorm.Expr("CURRENT_TIMESTAMP")
	} else {
		row["timestamp"] = fields.Timestamp.resolve(time.Now().UTC())
	}

	err := s.writes.Execute(ctx, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Model(&models.Message{}).Create(row).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to create message: %w", err)
	}

	if err := s.notifier.Publish(ctx, changeChannel(s.namespace, collection)); err != nil {
		// The write is committed; other instances catch up on their next signal
		s.log.Warn("Failed to publish change signal", "id", id, "error", err.Error())
	}

	return id, nil
}

func (s *GormStore) fetch(ctx context.Context, q Query) ([]Message, error) {
	// LimitToLast over the requested order is a limit over the reverse order
	order := "timestamp DESC, id DESC"
	if q.Direction == Descending {
		order = "timestamp ASC, id ASC"
	}

	tx := s.db.WithContext(ctx).Order(order)
	if q.LimitToLast > 0 {
		tx = tx.Limit(q.LimitToLast)
	}

	var rows []models.Message
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	out := make([]Message, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = Message{
			ID:        row.ID,
			Text:      row.Text,
			Username:  row.Username,
			UID:       row.UID,
			Timestamp: row.Timestamp,
		}
	}
	return out, nil
}
