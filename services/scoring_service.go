package services

import (
	"errors"
	"log"
	"time"

	"pubtrivia/models"

	"gorm.io/gorm"
)

// ScoringService applies point awards to team answers and keeps each team's
// aggregate score equal to the sum of its awarded points.
type ScoringService struct {
	db *gorm.DB
}

func NewScoringService(db *gorm.DB) *ScoringService {
	return &ScoringService{db: db}
}

type ScoreAnswerRequest struct {
	// Identify the answer either directly...
	AnswerID uint `json:"answer_id"`
	// ...or by coordinates (part id optional, for sub-scored questions).
	TeamID       uint  `json:"team_id"`
	QuestionID   uint  `json:"question_id"`
	AnswerPartID *uint `json:"answer_part_id"`

	Points *int `json:"points" binding:"required"`
}

type ScoreAnswerResult struct {
	AnswerID      uint  `json:"answer_id"`
	AnswerPartID  *uint `json:"answer_part_id"`
	PointsAwarded int   `json:"points_awarded"`
	MaxPoints     int   `json:"max_points"`
	QuestionTotal int   `json:"question_total"`
	TeamScore     int   `json:"team_score"`
}

// Score awards points to one answer. Re-scoring with a different value is
// allowed while the round stays locked; the team total is recomputed from
// scratch either way, so retries and corrections always converge.
func (s *ScoringService) Score(tx *gorm.DB, session *models.GameSession, req *ScoreAnswerRequest) (*ScoreAnswerResult, error) {
	if req.Points == nil {
		return nil, invalid("points required")
	}
	points := *req.Points
	if points < 0 {
		return nil, outOfRange("points cannot be negative")
	}

	answer, err := s.resolveAnswer(tx, session, req)
	if err != nil {
		return nil, err
	}

	var sessionRound models.SessionRound
	if err := tx.First(&sessionRound, answer.SessionRoundID).Error; err != nil {
		return nil, err
	}
	if sessionRound.Status != models.RoundLocked {
		return nil, invalidState("round is %s; answers are scored while locked", sessionRound.Status)
	}

	var question models.Question
	if err := tx.First(&question, answer.QuestionID).Error; err != nil {
		return nil, err
	}

	maxPoints := question.TotalPoints
	if answer.AnswerPartID != nil {
		var part models.Answer
		if err := tx.First(&part, *answer.AnswerPartID).Error; err != nil {
			return nil, err
		}
		maxPoints = part.Points
	}
	if points > maxPoints {
		return nil, outOfRange("points cannot exceed %d", maxPoints)
	}

	if answer.ScoredAt == nil {
		now := time.Now().UTC()
		answer.ScoredAt = &now
	}
	answer.PointsAwarded = &points
	if err := tx.Save(answer).Error; err != nil {
		return nil, err
	}

	teamScore, err := recomputeTeamScore(tx, answer.TeamID)
	if err != nil {
		return nil, err
	}

	var questionTotal int
	err = tx.Model(&models.TeamAnswer{}).
		Where("team_id = ? AND question_id = ? AND points_awarded IS NOT NULL", answer.TeamID, answer.QuestionID).
		Select("COALESCE(SUM(points_awarded), 0)").
		Scan(&questionTotal).Error
	if err != nil {
		return nil, err
	}

	return &ScoreAnswerResult{
		AnswerID:      answer.ID,
		AnswerPartID:  answer.AnswerPartID,
		PointsAwarded: points,
		MaxPoints:     maxPoints,
		QuestionTotal: questionTotal,
		TeamScore:     teamScore,
	}, nil
}

func (s *ScoringService) resolveAnswer(tx *gorm.DB, session *models.GameSession, req *ScoreAnswerRequest) (*models.TeamAnswer, error) {
	var answer models.TeamAnswer

	if req.AnswerID != 0 {
		err := tx.Select("team_answers.*").
			Joins("JOIN session_teams ON session_teams.id = team_answers.team_id").
			Where("team_answers.id = ? AND session_teams.session_id = ?", req.AnswerID, session.ID).
			First(&answer).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, notFound("answer %d not found", req.AnswerID)
			}
			return nil, err
		}
		return &answer, nil
	}

	if req.TeamID == 0 || req.QuestionID == 0 {
		return nil, invalid("provide answer_id or team_id + question_id")
	}

	var team models.SessionTeam
	err := tx.Where("id = ? AND session_id = ?", req.TeamID, session.ID).First(&team).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("team %d not found in session", req.TeamID)
		}
		return nil, err
	}

	query := tx.Where("team_id = ? AND question_id = ?", req.TeamID, req.QuestionID)
	if req.AnswerPartID != nil {
		query = query.Where("answer_part_id = ?", *req.AnswerPartID)
	} else {
		query = query.Where("answer_part_id IS NULL")
	}
	if err := query.First(&answer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("no answer for team %d on question %d", req.TeamID, req.QuestionID)
		}
		return nil, err
	}
	return &answer, nil
}

// recomputeTeamScore rewrites a team's score as the sum of its awarded
// points. Never an incremental add: the aggregate must stay reproducible
// from row-level data under retries and re-scoring.
func recomputeTeamScore(tx *gorm.DB, teamID uint) (int, error) {
	var total int
	err := tx.Model(&models.TeamAnswer{}).
		Where("team_id = ? AND points_awarded IS NOT NULL", teamID).
		Select("COALESCE(SUM(points_awarded), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if err := tx.Model(&models.SessionTeam{}).
		Where("id = ?", teamID).Update("score", total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

type TeamScore struct {
	Name  string `json:"name" binding:"required"`
	Score int    `json:"score"`
}

// Finalize bulk-overwrites team scores and completes the session. This is a
// coarse escape hatch for trusted external callers; it deliberately skips
// per-answer reconciliation, so the score-equals-sum invariant may not hold
// immediately afterwards.
func (s *ScoringService) Finalize(tx *gorm.DB, session *models.GameSession, teams []TeamScore) error {
	for _, ts := range teams {
		if err := tx.Model(&models.SessionTeam{}).
			Where("session_id = ? AND name = ?", session.ID, ts.Name).
			Update("score", ts.Score).Error; err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	session.Status = models.StatusCompleted
	session.StatusBeforePause = nil
	session.CompletedAt = &now
	if err := tx.Save(session).Error; err != nil {
		return err
	}

	log.Printf("Session %s finalized with %d external team scores", session.Code, len(teams))
	return nil
}

// ===========================================================================
// SCORING GRID (admin UI data)
// ===========================================================================

type ScoringData struct {
	RoundNumber int               `json:"round_number"`
	RoundName   string            `json:"round_name"`
	Questions   []ScoringQuestion `json:"questions"`
}

type ScoringQuestion struct {
	ID             uint                `json:"id"`
	Number         int                 `json:"number"`
	Text           string              `json:"text"`
	TotalPoints    int                 `json:"total_points"`
	Type           models.QuestionType `json:"type"`
	IsMultiPart    bool                `json:"is_multi_part"`
	CorrectAnswers []CorrectAnswer     `json:"correct_answers"`
	TeamAnswers    []TeamScoringRow    `json:"team_answers"`
}

type CorrectAnswer struct {
	ID           uint   `json:"id"`
	SubQuestion  string `json:"sub_question"`
	AnswerText   string `json:"answer_text"`
	CorrectRank  *int   `json:"correct_rank"`
	Points       int    `json:"points"`
	DisplayOrder int    `json:"display_order"`
}

type TeamScoringRow struct {
	TeamID   uint   `json:"team_id"`
	TeamName string `json:"team_name"`
	// Single-answer questions
	AnswerID      *uint  `json:"answer_id,omitempty"`
	AnswerText    string `json:"answer_text"`
	PointsAwarded *int   `json:"points_awarded"`
	// Multi-part questions
	Parts    []ScoringPart `json:"parts,omitempty"`
	IsScored bool          `json:"is_scored"`
}

type ScoringPart struct {
	AnswerPartID  uint   `json:"answer_part_id"`
	TeamAnswerID  *uint  `json:"team_answer_id"`
	AnswerText    string `json:"answer_text"`
	PointsAwarded *int   `json:"points_awarded"`
	MaxPoints     int    `json:"max_points"`
	IsScored      bool   `json:"is_scored"`
}

// ScoringGrid assembles every answer of the current round for the admin
// scoring view, per-part for sub-scored questions.
func (s *ScoringService) ScoringGrid(code string) (*ScoringData, error) {
	var data *ScoringData
	err := withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		sessionRound, err := currentSessionRound(tx, session)
		if err != nil {
			return err
		}

		questions, err := loadRoundQuestions(tx, sessionRound.RoundID)
		if err != nil {
			return err
		}
		var teams []models.SessionTeam
		if err := tx.Where("session_id = ?", session.ID).Order("id").Find(&teams).Error; err != nil {
			return err
		}

		data = &ScoringData{
			RoundNumber: sessionRound.Round.RoundNumber,
			RoundName:   sessionRound.Round.Name,
		}

		for i := range questions {
			question := &questions[i]
			multiPart := isMultiPart(question)

			sq := ScoringQuestion{
				ID:          question.ID,
				Number:      question.QuestionNumber,
				Text:        question.Text,
				TotalPoints: question.TotalPoints,
				Type:        question.Type,
				IsMultiPart: multiPart,
			}
			for j := range question.Answers {
				part := &question.Answers[j]
				sq.CorrectAnswers = append(sq.CorrectAnswers, CorrectAnswer{
					ID:           part.ID,
					SubQuestion:  part.Text,
					AnswerText:   part.AnswerText,
					CorrectRank:  part.CorrectRank,
					Points:       part.Points,
					DisplayOrder: part.DisplayOrder,
				})
			}

			for j := range teams {
				team := &teams[j]
				row := TeamScoringRow{TeamID: team.ID, TeamName: team.Name}

				if multiPart {
					var partAnswers []models.TeamAnswer
					err := tx.Where("team_id = ? AND question_id = ? AND answer_part_id IS NOT NULL",
						team.ID, question.ID).Find(&partAnswers).Error
					if err != nil {
						return err
					}
					byPart := make(map[uint]*models.TeamAnswer, len(partAnswers))
					for k := range partAnswers {
						byPart[*partAnswers[k].AnswerPartID] = &partAnswers[k]
					}

					allScored := len(question.Answers) > 0
					for k := range question.Answers {
						part := &question.Answers[k]
						sp := ScoringPart{AnswerPartID: part.ID, MaxPoints: part.Points}
						if pa := byPart[part.ID]; pa != nil {
							sp.TeamAnswerID = &pa.ID
							sp.AnswerText = pa.AnswerText
							sp.PointsAwarded = pa.PointsAwarded
							sp.IsScored = pa.PointsAwarded != nil
						}
						if !sp.IsScored {
							allScored = false
						}
						row.Parts = append(row.Parts, sp)
					}
					row.IsScored = allScored
				} else {
					var answer models.TeamAnswer
					err := tx.Where("team_id = ? AND question_id = ? AND answer_part_id IS NULL",
						team.ID, question.ID).First(&answer).Error
					if err == nil {
						row.AnswerID = &answer.ID
						row.AnswerText = answer.AnswerText
						row.PointsAwarded = answer.PointsAwarded
						row.IsScored = answer.PointsAwarded != nil
					} else if !errors.Is(err, gorm.ErrRecordNotFound) {
						return err
					}
				}

				sq.TeamAnswers = append(sq.TeamAnswers, row)
			}

			data.Questions = append(data.Questions, sq)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
