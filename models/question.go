package models

import (
	"time"
)

// QuestionType tags the shape of a question's answer payload. The optional
// fields on Answer are only meaningful for the type that owns them.
type QuestionType string

const (
	QuestionTypeMultipleChoice    QuestionType = "multiple_choice"
	QuestionTypeOpenEnded         QuestionType = "open_ended"
	QuestionTypeRanking           QuestionType = "ranking"
	QuestionTypeMatching          QuestionType = "matching"
	QuestionTypeMultipleOpenEnded QuestionType = "multiple_open_ended"
)

type Question struct {
	ID         uint         `json:"id" gorm:"primaryKey"`
	GameID     uint         `json:"game_id" gorm:"not null;uniqueIndex:idx_game_question_number"`
	RoundID    uint         `json:"round_id" gorm:"not null"`
	CategoryID *uint        `json:"category_id"`
	Type       QuestionType `json:"type" gorm:"not null;default:'open_ended'"`

	Text       string `json:"text" gorm:"not null"`
	AnswerBank string `json:"answer_bank"`

	// Sequential question number across the entire game
	QuestionNumber int `json:"question_number" gorm:"not null;uniqueIndex:idx_game_question_number"`
	TotalPoints    int `json:"total_points" gorm:"not null;default:1"`

	QuestionImageURL string `json:"question_image_url"`
	QuestionVideoURL string `json:"question_video_url"`
	AnswerImageURL   string `json:"answer_image_url"`
	AnswerVideoURL   string `json:"answer_video_url"`

	CreatedAt time.Time `json:"created_at"`

	// Relationships
	Round    Round     `json:"round,omitempty"`
	Category *Category `json:"category,omitempty"`
	Answers  []Answer  `json:"answers,omitempty" gorm:"foreignKey:QuestionID"`
}
