package models

import (
	"time"
)

type RoundStatus string

const (
	RoundPending RoundStatus = "pending"
	RoundActive  RoundStatus = "active"
	RoundLocked  RoundStatus = "locked"
	RoundScored  RoundStatus = "scored"
)

// SessionRound tracks one catalog round's live progress within one session.
// The started/locked/scored timestamps are set exactly once, on the
// corresponding transition.
type SessionRound struct {
	ID        uint `json:"id" gorm:"primaryKey"`
	SessionID uint `json:"session_id" gorm:"not null;uniqueIndex:idx_session_round"`
	RoundID   uint `json:"round_id" gorm:"not null;uniqueIndex:idx_session_round"`

	Status RoundStatus `json:"status" gorm:"not null;default:'pending'"`

	StartedAt *time.Time `json:"started_at"`
	LockedAt  *time.Time `json:"locked_at"`
	ScoredAt  *time.Time `json:"scored_at"`

	// Relationships
	Session GameSession  `json:"session,omitempty"`
	Round   Round        `json:"round,omitempty"`
	Answers []TeamAnswer `json:"answers,omitempty" gorm:"foreignKey:SessionRoundID;constraint:OnDelete:CASCADE"`
}
