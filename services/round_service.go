package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"pubtrivia/models"

	"gorm.io/gorm"
)

// RoundService drives a SessionRound through pending -> active -> locked ->
// scored. Its methods run inside the per-session transaction opened by the
// session state machine.
type RoundService struct {
	db *gorm.DB
}

func NewRoundService(db *gorm.DB) *RoundService {
	return &RoundService{db: db}
}

// Activate moves a pending round to active and stamps started_at.
func (r *RoundService) Activate(tx *gorm.DB, sessionRound *models.SessionRound) error {
	if sessionRound.Status != models.RoundPending {
		return invalidState("round is %s, not pending", sessionRound.Status)
	}
	now := time.Now().UTC()
	sessionRound.Status = models.RoundActive
	sessionRound.StartedAt = &now
	return tx.Save(sessionRound).Error
}

// Lock freezes the session's current round for scoring. Every existing team
// answer becomes locked, multi-part submissions are split into per-part
// records (with ranking and matching parts auto-scored), and a zero-point
// answer is materialized for every (team, question) pair that never
// submitted. Once locked, every team has exactly one scored-or-scorable
// record per question in the round.
func (r *RoundService) Lock(tx *gorm.DB, session *models.GameSession) error {
	if session.CurrentRoundID == nil {
		return invalidState("no current round to lock")
	}

	sessionRound, err := currentSessionRound(tx, session)
	if err != nil {
		return err
	}
	if sessionRound.Status != models.RoundActive {
		return invalidState("round is %s, not active", sessionRound.Status)
	}

	questions, err := loadRoundQuestions(tx, *session.CurrentRoundID)
	if err != nil {
		return err
	}

	var teams []models.SessionTeam
	if err := tx.Where("session_id = ?", session.ID).Order("id").Find(&teams).Error; err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := range questions {
		question := &questions[i]
		multiPart := isMultiPart(question)

		for j := range teams {
			team := &teams[j]

			var existing models.TeamAnswer
			err := tx.Where("team_id = ? AND question_id = ? AND answer_part_id IS NULL",
				team.ID, question.ID).First(&existing).Error
			found := err == nil
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			if multiPart {
				if found {
					parts, err := splitAnswerIntoParts(tx, &existing, question, sessionRound)
					if err != nil {
						return err
					}
					if question.Type == models.QuestionTypeRanking || question.Type == models.QuestionTypeMatching {
						if err := autoScoreParts(tx, parts, question, now); err != nil {
							return err
						}
					}
					// Parts carry the answer now; drop the combined record.
					if err := tx.Delete(&existing).Error; err != nil {
						return err
					}
				} else {
					zero := 0
					for k := range question.Answers {
						part := &question.Answers[k]
						record := models.TeamAnswer{
							TeamID:         team.ID,
							QuestionID:     question.ID,
							SessionRoundID: sessionRound.ID,
							AnswerPartID:   &part.ID,
							AnswerText:     "",
							IsLocked:       true,
							PointsAwarded:  &zero,
							ScoredAt:       &now,
						}
						if err := tx.Create(&record).Error; err != nil {
							return err
						}
					}
				}
			} else {
				if found {
					if err := tx.Model(&existing).Update("is_locked", true).Error; err != nil {
						return err
					}
				} else {
					zero := 0
					record := models.TeamAnswer{
						TeamID:         team.ID,
						QuestionID:     question.ID,
						SessionRoundID: sessionRound.ID,
						AnswerText:     "",
						IsLocked:       true,
						PointsAwarded:  &zero,
						ScoredAt:       &now,
					}
					if err := tx.Create(&record).Error; err != nil {
						return err
					}
				}
			}
		}
	}

	sessionRound.Status = models.RoundLocked
	sessionRound.LockedAt = &now
	if err := tx.Save(sessionRound).Error; err != nil {
		return err
	}

	log.Printf("Locked round %d in session %s (%d questions, %d teams)",
		*session.CurrentRoundID, session.Code, len(questions), len(teams))
	return nil
}

// Complete marks the current round scored. It refuses while any answer in
// the round is still unscored; the lock-time auto-scoring guarantees admin
// scoring of the submitted answers is all that remains.
func (r *RoundService) Complete(tx *gorm.DB, session *models.GameSession) error {
	sessionRound, err := currentSessionRound(tx, session)
	if err != nil {
		return err
	}
	if sessionRound.Status != models.RoundLocked {
		return invalidState("round is %s, not locked", sessionRound.Status)
	}

	var unscoredIDs []uint
	err = tx.Model(&models.TeamAnswer{}).
		Where("session_round_id = ? AND points_awarded IS NULL", sessionRound.ID).
		Order("id").
		Pluck("id", &unscoredIDs).Error
	if err != nil {
		return err
	}
	if len(unscoredIDs) > 0 {
		return incompleteScoring(len(unscoredIDs), unscoredIDs)
	}

	// Auto-scored answers (lock-time zero fills, ranking/matching credit)
	// bypass the per-answer scoring path, so refresh every team total here.
	var teamIDs []uint
	if err := tx.Model(&models.SessionTeam{}).
		Where("session_id = ?", session.ID).Pluck("id", &teamIDs).Error; err != nil {
		return err
	}
	for _, teamID := range teamIDs {
		if _, err := recomputeTeamScore(tx, teamID); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	sessionRound.Status = models.RoundScored
	sessionRound.ScoredAt = &now
	return tx.Save(sessionRound).Error
}

// NextPending returns the next pending session round after the current one
// in round-number order, or nil when the game is out of rounds.
func (r *RoundService) NextPending(tx *gorm.DB, session *models.GameSession) (*models.SessionRound, error) {
	currentNumber := 0
	if session.CurrentRoundID != nil {
		var round models.Round
		if err := tx.First(&round, *session.CurrentRoundID).Error; err != nil {
			return nil, err
		}
		currentNumber = round.RoundNumber
	}

	var next models.SessionRound
	err := tx.Select("session_rounds.*").
		Joins("JOIN rounds ON rounds.id = session_rounds.round_id").
		Where("session_rounds.session_id = ? AND session_rounds.status = ? AND rounds.round_number > ?",
			session.ID, models.RoundPending, currentNumber).
		Order("rounds.round_number").
		Preload("Round").
		First(&next).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &next, nil
}

func currentSessionRound(tx *gorm.DB, session *models.GameSession) (*models.SessionRound, error) {
	if session.CurrentRoundID == nil {
		return nil, invalidState("session has no current round")
	}
	var sessionRound models.SessionRound
	err := tx.Where("session_id = ? AND round_id = ?", session.ID, *session.CurrentRoundID).
		Preload("Round").
		First(&sessionRound).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("session round not found")
		}
		return nil, err
	}
	return &sessionRound, nil
}

// isMultiPart reports whether a question is scored part by part. Ranking and
// matching always are; multi-open-ended only when at least one part carries
// an explicit sub-question prompt.
func isMultiPart(question *models.Question) bool {
	switch question.Type {
	case models.QuestionTypeRanking, models.QuestionTypeMatching:
		return true
	case models.QuestionTypeMultipleOpenEnded:
		for i := range question.Answers {
			if strings.TrimSpace(question.Answers[i].Text) != "" {
				return true
			}
		}
	}
	return false
}

// splitAnswerIntoParts explodes a JSON-array submission into one TeamAnswer
// per catalog answer part. Missing or malformed entries become empty parts.
func splitAnswerIntoParts(tx *gorm.DB, combined *models.TeamAnswer, question *models.Question, sessionRound *models.SessionRound) ([]*models.TeamAnswer, error) {
	if len(question.Answers) == 0 {
		return []*models.TeamAnswer{combined}, nil
	}

	var entries []json.RawMessage
	if combined.AnswerText != "" {
		if err := json.Unmarshal([]byte(combined.AnswerText), &entries); err != nil {
			// Not an array: treat the whole text as the first part.
			entries = []json.RawMessage{json.RawMessage(strconv.Quote(combined.AnswerText))}
		}
	}

	parts := make([]*models.TeamAnswer, 0, len(question.Answers))
	for idx := range question.Answers {
		answerPart := &question.Answers[idx]

		text := ""
		if idx < len(entries) {
			var s string
			if err := json.Unmarshal(entries[idx], &s); err == nil {
				text = s
			} else {
				text = string(entries[idx])
			}
		}

		var record models.TeamAnswer
		err := tx.Where("team_id = ? AND question_id = ? AND answer_part_id = ?",
			combined.TeamID, question.ID, answerPart.ID).First(&record).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
			record = models.TeamAnswer{
				TeamID:         combined.TeamID,
				QuestionID:     question.ID,
				SessionRoundID: sessionRound.ID,
				AnswerPartID:   &answerPart.ID,
			}
		}
		record.AnswerText = text
		record.IsLocked = true
		if err := tx.Save(&record).Error; err != nil {
			return nil, err
		}
		parts = append(parts, &record)
	}
	return parts, nil
}

// autoScoreParts grades ranking and matching parts with per-item partial
// credit: each correctly placed or matched item earns its part's points.
func autoScoreParts(tx *gorm.DB, parts []*models.TeamAnswer, question *models.Question, now time.Time) error {
	partsByDisplayOrder := make(map[int]*models.Answer)
	if question.Type == models.QuestionTypeRanking {
		for i := range question.Answers {
			partsByDisplayOrder[question.Answers[i].DisplayOrder] = &question.Answers[i]
		}
	}

	for idx, partAnswer := range parts {
		if partAnswer.AnswerPartID == nil {
			continue
		}
		answerPart := findAnswerPart(question, *partAnswer.AnswerPartID)
		if answerPart == nil {
			continue
		}

		correct := false
		switch question.Type {
		case models.QuestionTypeRanking:
			// answer_text holds the display_order of the item the team
			// placed at this position; correct when that item's rank is
			// this position (1-indexed).
			if selection, err := strconv.Atoi(strings.TrimSpace(partAnswer.AnswerText)); err == nil {
				if selected := partsByDisplayOrder[selection]; selected != nil && selected.CorrectRank != nil {
					correct = *selected.CorrectRank == idx+1
				}
			}
		case models.QuestionTypeMatching:
			submitted := strings.ToLower(strings.TrimSpace(partAnswer.AnswerText))
			expected := strings.ToLower(strings.TrimSpace(answerPart.AnswerText))
			correct = submitted != "" && submitted == expected
		}

		points := 0
		if correct {
			points = answerPart.Points
		}
		partAnswer.PointsAwarded = &points
		partAnswer.ScoredAt = &now
		if err := tx.Save(partAnswer).Error; err != nil {
			return err
		}
	}
	return nil
}

func findAnswerPart(question *models.Question, partID uint) *models.Answer {
	for i := range question.Answers {
		if question.Answers[i].ID == partID {
			return &question.Answers[i]
		}
	}
	return nil
}

// roundLabel is used in log lines and admin responses.
func roundLabel(round *models.Round) string {
	if round == nil {
		return "?"
	}
	return fmt.Sprintf("round %d (%s)", round.RoundNumber, round.Name)
}
