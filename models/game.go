package models

import (
	"time"
)

// Game is part of the read-only question catalog. The session engine never
// mutates it.
type Game struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"not null"`
	Description string    `json:"description"`
	GameOrder   int       `json:"game_order" gorm:"not null;default:1"`
	CreatedAt   time.Time `json:"created_at"`

	// Relationships
	Rounds []Round `json:"rounds,omitempty" gorm:"foreignKey:GameID"`
}
