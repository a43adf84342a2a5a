package models

import (
	"time"

	"fixitnow/chatdesk/internal/utils"
)

// IBase is implemented by every versioned aggregate document.
type IBase interface {
	GenIDIfEmpty()
	GenID()
	SetID(id utils.SixID)
	GetID() utils.SixID
	GetVersion() int64
	Stamp(now time.Time)
}

// Base carries the identity, optimistic-concurrency version and audit timestamps of an aggregate.
type Base struct {
	ID        utils.SixID `bson:"_id" json:"id"`
	Version   int64       `bson:"version" json:"version"`
	CreatedAt time.Time   `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time   `bson:"updated_at" json:"updatedAt"`
}

func (m *Base) GenIDIfEmpty() {
	if m.ID.IsZero() {
		m.GenID()
	}
}

func (m *Base) GenID() {
	m.ID = utils.NewSixID()
}

func (m *Base) SetID(id utils.SixID) {
	m.ID = id
}

func (m *Base) GetID() utils.SixID {
	return m.ID
}

func (m *Base) GetVersion() int64 {
	return m.Version
}

// Stamp bumps the version and UpdatedAt ahead of a committed write.
func (m *Base) Stamp(now time.Time) {
	m.Version++
	m.UpdatedAt = now
}

func NewBase(now time.Time) Base {
	return Base{
		ID:        utils.NewSixID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Now returns the current UTC time at the millisecond precision MongoDB stores.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
