package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a document in the messages collection.
// Timestamp is assigned by the database when the row is written.
type Message struct {
	ID        string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Text      string     `gorm:"type:text;not null" json:"text"`
	Username  string     `gorm:"not null" json:"username"`
	UID       string     `gorm:"index;not null" json:"uid"`
	Timestamp *time.Time `gorm:"index" json:"timestamp"`
	CreatedAt time.Time  `json:"-"`
}

// TableName overrides the table name
func (Message) TableName() string {
	return "messages"
}

// BeforeCreate assigns a document id when none was supplied
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
