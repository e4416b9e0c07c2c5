package models

import (
	"time"
)

// SessionTeam is one team playing in one session. Names are unique within a
// session (case-insensitive, enforced at join time), not globally.
type SessionTeam struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	SessionID uint   `json:"session_id" gorm:"not null;uniqueIndex:idx_session_team_name"`
	Name      string `json:"name" gorm:"not null;uniqueIndex:idx_session_team_name"`
	Token     string `json:"-" gorm:"uniqueIndex;not null"`

	// Always equal to the sum of points_awarded over this team's answers,
	// except immediately after a bulk finalize overwrite.
	Score int `json:"score" gorm:"not null;default:0"`

	JoinedAt   time.Time `json:"joined_at"`
	JoinedLate bool      `json:"joined_late" gorm:"not null;default:false"`
	LastSeen   time.Time `json:"last_seen"`

	// Relationships
	Session GameSession  `json:"session,omitempty"`
	Answers []TeamAnswer `json:"answers,omitempty" gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE"`
}
