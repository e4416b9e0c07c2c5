package models

// Round is a named, ordered group of questions within a game's catalog.
type Round struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	GameID      uint   `json:"game_id" gorm:"not null;uniqueIndex:idx_game_round_number"`
	Name        string `json:"name" gorm:"not null"`
	Description string `json:"description"`
	RoundNumber int    `json:"round_number" gorm:"not null;default:1;uniqueIndex:idx_game_round_number"`

	// Relationships
	Questions []Question `json:"questions,omitempty" gorm:"foreignKey:RoundID"`
}
