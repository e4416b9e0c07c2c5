package models

// Answer is one scorable part of a catalog question. Single-answer questions
// carry one part holding the correct answer; ranking, matching and
// multi-prompt questions carry one part per item.
type Answer struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	QuestionID uint `json:"question_id" gorm:"not null"`

	// Sub-question prompt shown to teams (matching left column, ranking item,
	// open-ended sub-question). Blank for simple questions.
	Text string `json:"text"`

	// The correct answer for this part.
	AnswerText  string `json:"answer_text"`
	Explanation string `json:"explanation"`

	DisplayOrder int `json:"display_order" gorm:"not null;default:0"`

	// Only meaningful for ranking questions: 1-indexed correct position.
	CorrectRank *int `json:"correct_rank"`

	// Points this part is worth when sub-scored.
	Points int `json:"points" gorm:"not null;default:1"`

	QuestionImageURL string `json:"question_image_url"`
	AnswerImageURL   string `json:"answer_image_url"`
	QuestionVideoURL string `json:"question_video_url"`
	AnswerVideoURL   string `json:"answer_video_url"`
}
