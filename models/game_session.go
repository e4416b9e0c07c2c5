package models

import (
	"time"
)

type SessionStatus string

const (
	StatusLobby     SessionStatus = "lobby"
	StatusPlaying   SessionStatus = "playing"
	StatusPaused    SessionStatus = "paused"
	StatusScoring   SessionStatus = "scoring"
	StatusReviewing SessionStatus = "reviewing"
	StatusCompleted SessionStatus = "completed"
)

// GameSession is one played instance of a Game, identified by a short
// human-shareable code. It owns its teams, session rounds and (transitively)
// team answers; deleting a session cascades down.
type GameSession struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	Code   string `json:"code" gorm:"uniqueIndex;not null"` // stored lowercase
	GameID uint   `json:"game_id" gorm:"not null"`

	AdminName  string `json:"admin_name" gorm:"not null"`
	AdminToken string `json:"-" gorm:"uniqueIndex;not null"`

	Status SessionStatus `json:"status" gorm:"not null;default:'lobby'"`

	// Set iff Status == paused; holds the status restored on resume.
	StatusBeforePause *SessionStatus `json:"status_before_pause"`

	CurrentRoundID    *uint `json:"current_round_id"`
	CurrentQuestionID *uint `json:"current_question_id"`

	MaxTeams            int  `json:"max_teams" gorm:"not null;default:16"`
	AllowLateJoins      bool `json:"allow_late_joins" gorm:"not null;default:true"`
	AllowTeamNavigation bool `json:"allow_team_navigation" gorm:"not null;default:false"`

	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	AdminLastSeen time.Time  `json:"admin_last_seen"`

	// Relationships
	Game            Game           `json:"game,omitempty"`
	CurrentRound    *Round         `json:"current_round,omitempty"`
	CurrentQuestion *Question      `json:"current_question,omitempty"`
	Teams           []SessionTeam  `json:"teams,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Rounds          []SessionRound `json:"rounds,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// Terminal reports whether the session can no longer change state.
func (s *GameSession) Terminal() bool {
	return s.Status == StatusCompleted
}
