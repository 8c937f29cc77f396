package orm

import (
	"time"
)

// EventCursor persists the poll position for one chain event kind,
// one row per kind. The cursor only advances past events whose effect
// committed, so restarts resume without loss.
type EventCursor struct {
	ID        uint64 `gorm:"primary_key"`
	Kind      string `gorm:"uniqueIndex;size:64"`
	TxDigest  string
	EventSeq  uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName changes the default table name.
func (EventCursor) TableName() string {
	return "event_cursors"
}
