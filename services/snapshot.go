package services

import (
	"pubtrivia/models"

	"gorm.io/gorm"
)

// SessionState is the consolidated snapshot polled by every client. One
// snapshot is built per poll inside the session transaction, so a client
// never observes a half-applied transition.
type SessionState struct {
	Code      string               `json:"code"`
	Status    models.SessionStatus `json:"status"`
	GameID    uint                 `json:"game_id"`
	GameName  string               `json:"game_name"`
	AdminName string               `json:"admin_name"`

	CurrentRound    *RoundState   `json:"current_round,omitempty"`
	CurrentQuestion *QuestionView `json:"current_question,omitempty"`

	Teams     []TeamState `json:"teams"`
	TeamCount int         `json:"team_count"`
	MaxTeams  int         `json:"max_teams"`

	AllowTeamNavigation bool `json:"allow_team_navigation"`

	RoundProgress []QuestionProgress `json:"round_progress,omitempty"`

	// Only populated for a team-authenticated poll: that team's submission
	// for the current question.
	YourSubmission *SubmissionState `json:"your_submission,omitempty"`
}

type RoundState struct {
	RoundNumber int                `json:"round_number"`
	RoundName   string             `json:"round_name"`
	Status      models.RoundStatus `json:"status"`
}

// QuestionView is the display payload for one question. The variant field
// matching the question type is set; the others stay nil.
type QuestionView struct {
	ID          uint                `json:"id"`
	Number      int                 `json:"number"`
	Text        string              `json:"text"`
	TotalPoints int                 `json:"total_points"`
	Type        models.QuestionType `json:"type"`

	CategoryName string `json:"category_name,omitempty"`
	AnswerBank   string `json:"answer_bank,omitempty"`

	ImageURL       string `json:"image_url,omitempty"`
	VideoURL       string `json:"video_url,omitempty"`
	AnswerImageURL string `json:"answer_image_url,omitempty"`
	AnswerVideoURL string `json:"answer_video_url,omitempty"`

	MultipleChoice *ChoicesPayload  `json:"multiple_choice,omitempty"`
	Ranking        *RankingPayload  `json:"ranking,omitempty"`
	Matching       *MatchingPayload `json:"matching,omitempty"`
	Prompts        *PromptsPayload  `json:"prompts,omitempty"`
}

type ChoicesPayload struct {
	Options []ChoiceOption `json:"options"`
}

type ChoiceOption struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

type RankingPayload struct {
	Items []RankingItem `json:"items"`
}

type RankingItem struct {
	ID           uint   `json:"id"`
	Text         string `json:"text"`
	DisplayOrder int    `json:"display_order"`
	// Revealed only once the owning round is scored.
	CorrectRank *int `json:"correct_rank,omitempty"`
}

type MatchingPayload struct {
	Pairs []MatchPair `json:"pairs"`
}

type MatchPair struct {
	ID     uint   `json:"id"`
	Prompt string `json:"prompt"`
	// Revealed only once the owning round is scored.
	CorrectAnswer string `json:"correct_answer,omitempty"`
}

type PromptsPayload struct {
	Prompts []SubPrompt `json:"prompts"`
}

type SubPrompt struct {
	ID     uint   `json:"id"`
	Text   string `json:"text"`
	Points int    `json:"points"`
}

type TeamState struct {
	ID                 uint   `json:"id"`
	Name               string `json:"name"`
	Score              int    `json:"score"`
	JoinedLate         bool   `json:"joined_late"`
	HasAnsweredCurrent bool   `json:"has_answered_current"`
}

type QuestionProgress struct {
	QuestionID     uint `json:"question_id"`
	QuestionNumber int  `json:"question_number"`
	SubmittedCount int  `json:"submitted_count"`
	TotalTeams     int  `json:"total_teams"`
}

type SubmissionState struct {
	AnswerText    string `json:"answer_text"`
	IsLocked      bool   `json:"is_locked"`
	PointsAwarded *int   `json:"points_awarded"`
}

// buildState assembles the full snapshot for one session inside tx. team is
// non-nil for team-authenticated polls.
func buildState(tx *gorm.DB, session *models.GameSession, team *models.SessionTeam) (*SessionState, error) {
	var game models.Game
	if err := tx.First(&game, session.GameID).Error; err != nil {
		return nil, err
	}

	state := &SessionState{
		Code:                session.Code,
		Status:              session.Status,
		GameID:              game.ID,
		GameName:            game.Name,
		AdminName:           session.AdminName,
		MaxTeams:            session.MaxTeams,
		AllowTeamNavigation: session.AllowTeamNavigation,
		Teams:               []TeamState{},
	}

	var currentRound *models.SessionRound
	if session.CurrentRoundID != nil {
		sessionRound, err := currentSessionRound(tx, session)
		if err != nil {
			return nil, err
		}
		currentRound = sessionRound
		state.CurrentRound = &RoundState{
			RoundNumber: sessionRound.Round.RoundNumber,
			RoundName:   sessionRound.Round.Name,
			Status:      sessionRound.Status,
		}
	}

	if session.CurrentQuestionID != nil {
		question, err := loadGameQuestion(tx, session.GameID, *session.CurrentQuestionID)
		if err != nil {
			return nil, err
		}
		revealAnswers := currentRound != nil && currentRound.Status == models.RoundScored
		state.CurrentQuestion = questionView(question, revealAnswers)
	}

	var teams []models.SessionTeam
	if err := tx.Where("session_id = ?", session.ID).Order("id").Find(&teams).Error; err != nil {
		return nil, err
	}
	for i := range teams {
		t := &teams[i]
		answered := false
		if session.CurrentQuestionID != nil {
			var count int64
			err := tx.Model(&models.TeamAnswer{}).
				Where("team_id = ? AND question_id = ? AND answer_text <> ''", t.ID, *session.CurrentQuestionID).
				Count(&count).Error
			if err != nil {
				return nil, err
			}
			answered = count > 0
		}
		state.Teams = append(state.Teams, TeamState{
			ID:                 t.ID,
			Name:               t.Name,
			Score:              t.Score,
			JoinedLate:         t.JoinedLate,
			HasAnsweredCurrent: answered,
		})
	}
	state.TeamCount = len(state.Teams)

	if currentRound != nil {
		questions, err := loadRoundQuestions(tx, currentRound.RoundID)
		if err != nil {
			return nil, err
		}
		for i := range questions {
			q := &questions[i]
			var submitted int64
			err := tx.Model(&models.TeamAnswer{}).
				Joins("JOIN session_teams ON session_teams.id = team_answers.team_id").
				Where("team_answers.question_id = ? AND session_teams.session_id = ? AND team_answers.answer_text <> ''",
					q.ID, session.ID).
				Distinct("team_answers.team_id").
				Count(&submitted).Error
			if err != nil {
				return nil, err
			}
			state.RoundProgress = append(state.RoundProgress, QuestionProgress{
				QuestionID:     q.ID,
				QuestionNumber: q.QuestionNumber,
				SubmittedCount: int(submitted),
				TotalTeams:     len(teams),
			})
		}
	}

	if team != nil && session.CurrentQuestionID != nil {
		var answer models.TeamAnswer
		err := tx.Where("team_id = ? AND question_id = ? AND answer_part_id IS NULL",
			team.ID, *session.CurrentQuestionID).First(&answer).Error
		if err == nil {
			state.YourSubmission = &SubmissionState{
				AnswerText:    answer.AnswerText,
				IsLocked:      answer.IsLocked,
				PointsAwarded: answer.PointsAwarded,
			}
		}
	}

	return state, nil
}

// questionView renders the tagged display payload for one question. Correct
// answers stay hidden until the owning round has been scored.
func questionView(question *models.Question, revealAnswers bool) *QuestionView {
	view := &QuestionView{
		ID:             question.ID,
		Number:         question.QuestionNumber,
		Text:           question.Text,
		TotalPoints:    question.TotalPoints,
		Type:           question.Type,
		AnswerBank:     question.AnswerBank,
		ImageURL:       question.QuestionImageURL,
		VideoURL:       question.QuestionVideoURL,
		AnswerImageURL: question.AnswerImageURL,
		AnswerVideoURL: question.AnswerVideoURL,
	}
	if question.Category != nil {
		view.CategoryName = question.Category.Name
	}

	switch question.Type {
	case models.QuestionTypeMultipleChoice:
		payload := &ChoicesPayload{}
		for i := range question.Answers {
			part := &question.Answers[i]
			payload.Options = append(payload.Options, ChoiceOption{ID: part.ID, Text: part.Text})
		}
		view.MultipleChoice = payload
	case models.QuestionTypeRanking:
		payload := &RankingPayload{}
		for i := range question.Answers {
			part := &question.Answers[i]
			item := RankingItem{ID: part.ID, Text: part.Text, DisplayOrder: part.DisplayOrder}
			if revealAnswers {
				item.CorrectRank = part.CorrectRank
			}
			payload.Items = append(payload.Items, item)
		}
		view.Ranking = payload
	case models.QuestionTypeMatching:
		payload := &MatchingPayload{}
		for i := range question.Answers {
			part := &question.Answers[i]
			pair := MatchPair{ID: part.ID, Prompt: part.Text}
			if revealAnswers {
				pair.CorrectAnswer = part.AnswerText
			}
			payload.Pairs = append(payload.Pairs, pair)
		}
		view.Matching = payload
	case models.QuestionTypeMultipleOpenEnded:
		payload := &PromptsPayload{}
		for i := range question.Answers {
			part := &question.Answers[i]
			payload.Prompts = append(payload.Prompts, SubPrompt{ID: part.ID, Text: part.Text, Points: part.Points})
		}
		view.Prompts = payload
	}

	return view
}
