package models

import (
	"time"
)

// TeamAnswer is one team's submission for one question, or for one part of a
// multi-part question when AnswerPartID is set. At most one row exists per
// (team, question, part) triple; simple questions use a nil part.
type TeamAnswer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	TeamID     uint `json:"team_id" gorm:"not null;uniqueIndex:idx_team_question_part"`
	QuestionID uint `json:"question_id" gorm:"not null;uniqueIndex:idx_team_question_part"`

	// Denormalized back-reference for fast per-round queries.
	SessionRoundID uint `json:"session_round_id" gorm:"not null"`

	AnswerPartID *uint `json:"answer_part_id" gorm:"uniqueIndex:idx_team_question_part"`

	// Empty means "no answer given".
	AnswerText string `json:"answer_text"`

	// Set when the owning round is locked; no team edits are accepted after.
	IsLocked bool `json:"is_locked" gorm:"not null;default:false"`

	// Nil until scored; 0 <= value <= max for the question or part.
	PointsAwarded *int       `json:"points_awarded"`
	ScoredAt      *time.Time `json:"scored_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Team         SessionTeam  `json:"team,omitempty"`
	Question     Question     `json:"question,omitempty"`
	SessionRound SessionRound `json:"session_round,omitempty"`
	AnswerPart   *Answer      `json:"answer_part,omitempty" gorm:"foreignKey:AnswerPartID"`
}
