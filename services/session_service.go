package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"pubtrivia/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SessionService is the top-level session state machine. It owns
// GameSession.status, serializes every transition on the session aggregate,
// and composes the round controller and scoring engine inside its command
// handlers.
type SessionService struct {
	db           *gorm.DB
	redis        *redis.Client
	rounds       *RoundService
	scoring      *ScoringService
	adminTimeout time.Duration
}

func NewSessionService(db *gorm.DB, redisClient *redis.Client, rounds *RoundService, scoring *ScoringService, adminTimeout time.Duration) *SessionService {
	return &SessionService{
		db:           db,
		redis:        redisClient,
		rounds:       rounds,
		scoring:      scoring,
		adminTimeout: adminTimeout,
	}
}

// ===========================================================================
// AUTHENTICATION
// ===========================================================================

// AuthenticateAdmin validates the admin bearer token, refreshes the admin
// heartbeat, and auto-resumes a session paused by a missed heartbeat.
func (s *SessionService) AuthenticateAdmin(code, token string) (*models.GameSession, error) {
	var result *models.GameSession
	err := withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		if token == "" || session.AdminToken != token {
			return forbidden("invalid admin token")
		}

		session.AdminLastSeen = time.Now().UTC()
		if session.Status == models.StatusPaused {
			s.resume(session)
			log.Printf("Session %s resumed by admin heartbeat", session.Code)
		}
		if err := tx.Save(session).Error; err != nil {
			return err
		}

		result = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AuthenticateTeam validates a team bearer token and refreshes that team's
// heartbeat.
func (s *SessionService) AuthenticateTeam(code, token string) (*models.GameSession, *models.SessionTeam, error) {
	var resultSession *models.GameSession
	var resultTeam *models.SessionTeam
	err := withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		if token == "" {
			return forbidden("missing team token")
		}
		var team models.SessionTeam
		err := tx.Where("session_id = ? AND token = ?", session.ID, token).First(&team).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return forbidden("invalid team token")
			}
			return err
		}

		team.LastSeen = time.Now().UTC()
		if err := tx.Model(&team).Update("last_seen", team.LastSeen).Error; err != nil {
			return err
		}

		resultSession = session
		resultTeam = &team
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return resultSession, resultTeam, nil
}

// ===========================================================================
// ADMIN TRANSITIONS
// ===========================================================================

// StartGame moves a lobby session into play: the first round goes active and
// the first question becomes current.
func (s *SessionService) StartGame(code string) error {
	return withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		if session.Status != models.StatusLobby {
			return invalidState("game already started (status %s)", session.Status)
		}

		var teamCount int64
		if err := tx.Model(&models.SessionTeam{}).
			Where("session_id = ?", session.ID).Count(&teamCount).Error; err != nil {
			return err
		}
		if teamCount < 1 {
			return invalidState("need at least one team to start")
		}

		var first models.SessionRound
		err := tx.Select("session_rounds.*").
			Joins("JOIN rounds ON rounds.id = session_rounds.round_id").
			Where("session_rounds.session_id = ?", session.ID).
			Order("rounds.round_number").
			Preload("Round").
			First(&first).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invalidState("game has no rounds")
			}
			return err
		}

		if err := s.rounds.Activate(tx, &first); err != nil {
			return err
		}

		firstQuestion, err := firstQuestionOfRound(tx, first.RoundID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		session.Status = models.StatusPlaying
		session.StartedAt = &now
		session.CurrentRoundID = &first.RoundID
		session.CurrentQuestionID = nil
		if firstQuestion != nil {
			session.CurrentQuestionID = &firstQuestion.ID
		}
		if err := tx.Save(session).Error; err != nil {
			return err
		}

		log.Printf("Session %s started: %s now active", session.Code, roundLabel(&first.Round))
		return nil
	})
}

// SetCurrentQuestion points the session at another question of the active
// round. Pure navigation; no scoring side effects.
func (s *SessionService) SetCurrentQuestion(code string, questionID uint) error {
	return withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		if session.Status != models.StatusPlaying {
			return invalidState("cannot change question while %s", session.Status)
		}

		question, err := loadGameQuestion(tx, session.GameID, questionID)
		if err != nil {
			return err
		}
		if session.CurrentRoundID == nil || question.RoundID != *session.CurrentRoundID {
			return invalidState("question is not in the current round")
		}

		sessionRound, err := currentSessionRound(tx, session)
		if err != nil {
			return err
		}
		if sessionRound.Status != models.RoundActive {
			return invalidState("round is %s, not active", sessionRound.Status)
		}

		session.CurrentQuestionID = &question.ID
		return tx.Save(session).Error
	})
}

// ToggleTeamNavigation flips whether teams may browse between questions of
// the round on their own devices.
func (s *SessionService) ToggleTeamNavigation(code string, allow bool) error {
	return withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		session.AllowTeamNavigation = allow
		return tx.Model(session).Update("allow_team_navigation", allow).Error
	})
}

// LockRound freezes the current round and moves the session into scoring.
func (s *SessionService) LockRound(code string) error {
	return withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		if err := s.rounds.Lock(tx, session); err != nil {
			return err
		}
		session.Status = models.StatusScoring
		return tx.Save(session).Error
	})
}

// ScoreAnswer awards points to one answer of the locked round.
func (s *SessionService) ScoreAnswer(code string, req *ScoreAnswerRequest) (*ScoreAnswerResult, error) {
	var result *ScoreAnswerResult
	err := withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		var err error
		result, err = s.scoring.Score(tx, session, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CompleteRound marks the current round scored and moves the session into
// review, resetting the current question to the round's first for walkthrough.
func (s *SessionService) CompleteRound(code string) error {
	return withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		if err := s.rounds.Complete(tx, session); err != nil {
			return err
		}

		firstQuestion, err := firstQuestionOfRound(tx, *session.CurrentRoundID)
		if err != nil {
			return err
		}

		session.Status = models.StatusReviewing
		session.CurrentQuestionID = nil
		if firstQuestion != nil {
			session.CurrentQuestionID = &firstQuestion.ID
		}
		return tx.Save(session).Error
	})
}

// NextRoundResult reports what StartNextRound did: either the next round's
// identity, or the final standings when the game completed.
type NextRoundResult struct {
	GameComplete bool             `json:"game_complete"`
	RoundNumber  int              `json:"round_number,omitempty"`
	RoundName    string           `json:"round_name,omitempty"`
	Standings    []StandingsEntry `json:"standings,omitempty"`
}

type StandingsEntry struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// StartNextRound leaves review mode: the next pending round goes active, or
// the session completes when none remain.
func (s *SessionService) StartNextRound(code string) (*NextRoundResult, error) {
	var result *NextRoundResult
	err := withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		if session.Status != models.StatusReviewing {
			return invalidState("not in review mode (status %s)", session.Status)
		}

		next, err := s.rounds.NextPending(tx, session)
		if err != nil {
			return err
		}

		if next == nil {
			now := time.Now().UTC()
			session.Status = models.StatusCompleted
			session.StatusBeforePause = nil
			session.CompletedAt = &now
			if err := tx.Save(session).Error; err != nil {
				return err
			}

			var teams []models.SessionTeam
			if err := tx.Where("session_id = ?", session.ID).
				Order("score DESC, joined_at").Find(&teams).Error; err != nil {
				return err
			}
			result = &NextRoundResult{GameComplete: true}
			for i, t := range teams {
				result.Standings = append(result.Standings, StandingsEntry{
					Rank:  i + 1,
					Name:  t.Name,
					Score: t.Score,
				})
			}

			log.Printf("Session %s complete after %d teams played", session.Code, len(teams))
			return nil
		}

		if err := s.rounds.Activate(tx, next); err != nil {
			return err
		}

		firstQuestion, err := firstQuestionOfRound(tx, next.RoundID)
		if err != nil {
			return err
		}

		session.Status = models.StatusPlaying
		session.CurrentRoundID = &next.RoundID
		session.CurrentQuestionID = nil
		if firstQuestion != nil {
			session.CurrentQuestionID = &firstQuestion.ID
		}
		if err := tx.Save(session).Error; err != nil {
			return err
		}

		result = &NextRoundResult{
			RoundNumber: next.Round.RoundNumber,
			RoundName:   next.Round.Name,
		}
		log.Printf("Session %s advanced to %s", session.Code, roundLabel(&next.Round))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Finalize is the bulk score-overwrite escape hatch for external callers.
func (s *SessionService) Finalize(code string, teams []TeamScore) error {
	return withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		return s.scoring.Finalize(tx, session, teams)
	})
}

// ===========================================================================
// TEAM COMMANDS
// ===========================================================================

type SubmitAnswerRequest struct {
	QuestionID uint   `json:"question_id" binding:"required"`
	AnswerText string `json:"answer_text"`
}

// SubmitAnswer creates or updates a team's answer while the owning round is
// active. Stale clients racing a lock see InvalidState, not a silent drop.
func (s *SessionService) SubmitAnswer(code string, teamID uint, req *SubmitAnswerRequest) error {
	return withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		var team models.SessionTeam
		if err := tx.Where("id = ? AND session_id = ?", teamID, session.ID).First(&team).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("team %d not found in session", teamID)
			}
			return err
		}

		question, err := loadGameQuestion(tx, session.GameID, req.QuestionID)
		if err != nil {
			return err
		}

		var sessionRound models.SessionRound
		err = tx.Where("session_id = ? AND round_id = ?", session.ID, question.RoundID).
			Preload("Round").
			First(&sessionRound).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("round not part of this session")
			}
			return err
		}
		if sessionRound.Status != models.RoundActive {
			return invalidState("round is %s, not accepting answers", sessionRound.Status)
		}

		// Late joiners cannot backfill rounds that started before they
		// arrived.
		if team.JoinedLate {
			var firstAccessible models.SessionRound
			err := tx.Select("session_rounds.*").
				Joins("JOIN rounds ON rounds.id = session_rounds.round_id").
				Where("session_rounds.session_id = ? AND session_rounds.started_at >= ?", session.ID, team.JoinedAt).
				Order("rounds.round_number").
				Preload("Round").
				First(&firstAccessible).Error
			if err == nil && sessionRound.Round.RoundNumber < firstAccessible.Round.RoundNumber {
				return invalidState("cannot answer questions from earlier rounds")
			}
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		var answer models.TeamAnswer
		err = tx.Where("team_id = ? AND question_id = ? AND answer_part_id IS NULL",
			team.ID, question.ID).First(&answer).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			answer = models.TeamAnswer{
				TeamID:         team.ID,
				QuestionID:     question.ID,
				SessionRoundID: sessionRound.ID,
			}
		}

		if answer.IsLocked {
			return invalidState("answer is locked")
		}

		answer.AnswerText = req.AnswerText
		return tx.Save(&answer).Error
	})
}

// TeamAnswerInfo is one row of a team's own answers for a round.
type TeamAnswerInfo struct {
	QuestionID     uint   `json:"question_id"`
	QuestionNumber int    `json:"question_number"`
	QuestionText   string `json:"question_text"`
	AnswerText     string `json:"answer_text"`
	IsLocked       bool   `json:"is_locked"`
	PointsAwarded  *int   `json:"points_awarded"`
}

type TeamAnswersResponse struct {
	RoundNumber int                `json:"round_number"`
	RoundStatus models.RoundStatus `json:"round_status"`
	Answers     []TeamAnswerInfo   `json:"answers"`
}

// TeamAnswers returns a team's own answers for the current (or a given)
// round, merging per-part records back into the combined shape clients
// submitted.
func (s *SessionService) TeamAnswers(code string, teamID uint, roundID *uint) (*TeamAnswersResponse, error) {
	var resp *TeamAnswersResponse
	err := withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		targetRoundID := roundID
		if targetRoundID == nil {
			targetRoundID = session.CurrentRoundID
		}
		if targetRoundID == nil {
			resp = &TeamAnswersResponse{Answers: []TeamAnswerInfo{}}
			return nil
		}

		var sessionRound models.SessionRound
		err := tx.Where("session_id = ? AND round_id = ?", session.ID, *targetRoundID).
			Preload("Round").
			First(&sessionRound).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("round not part of this session")
			}
			return err
		}

		questions, err := loadRoundQuestions(tx, *targetRoundID)
		if err != nil {
			return err
		}

		resp = &TeamAnswersResponse{
			RoundNumber: sessionRound.Round.RoundNumber,
			RoundStatus: sessionRound.Status,
			Answers:     []TeamAnswerInfo{},
		}

		for i := range questions {
			question := &questions[i]
			info := TeamAnswerInfo{
				QuestionID:     question.ID,
				QuestionNumber: question.QuestionNumber,
				QuestionText:   question.Text,
			}

			var partAnswers []models.TeamAnswer
			err := tx.Select("team_answers.*").
				Joins("JOIN answers ON answers.id = team_answers.answer_part_id").
				Where("team_answers.team_id = ? AND team_answers.question_id = ?", teamID, question.ID).
				Order("answers.display_order").
				Find(&partAnswers).Error
			if err != nil {
				return err
			}

			if len(partAnswers) > 0 {
				texts := make([]string, 0, len(partAnswers))
				total := 0
				allScored := true
				for j := range partAnswers {
					pa := &partAnswers[j]
					texts = append(texts, pa.AnswerText)
					if pa.PointsAwarded != nil {
						total += *pa.PointsAwarded
					} else {
						allScored = false
					}
					if pa.IsLocked {
						info.IsLocked = true
					}
				}
				combined, _ := json.Marshal(texts)
				info.AnswerText = string(combined)
				if allScored {
					info.PointsAwarded = &total
				}
			} else {
				var answer models.TeamAnswer
				err := tx.Where("team_id = ? AND question_id = ? AND answer_part_id IS NULL",
					teamID, question.ID).First(&answer).Error
				if err == nil {
					info.AnswerText = answer.AnswerText
					info.IsLocked = answer.IsLocked
					info.PointsAwarded = answer.PointsAwarded
				} else if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
			}

			resp.Answers = append(resp.Answers, info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ===========================================================================
// STATE POLLING & PAUSE
// ===========================================================================

// GetState returns the consolidated snapshot every client polls. The admin
// heartbeat is checked first, so a session whose admin went quiet shows up
// paused to the very poll that notices.
func (s *SessionService) GetState(code string, team *models.SessionTeam) (*SessionState, error) {
	var state *SessionState
	err := withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		if paused, err := s.maybeAutoPause(tx, session); err != nil {
			return err
		} else if paused {
			log.Printf("Session %s auto-paused: admin last seen %s", session.Code, session.AdminLastSeen)
		}

		var err error
		state, err = buildState(tx, session, team)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cacheState(state)
	return state, nil
}

// maybeAutoPause applies the lazily-evaluated admin timeout: no background
// timer, just a check on the next observed interaction.
func (s *SessionService) maybeAutoPause(tx *gorm.DB, session *models.GameSession) (bool, error) {
	if session.Status == models.StatusPaused || session.Terminal() {
		return false, nil
	}
	if time.Since(session.AdminLastSeen) < s.adminTimeout {
		return false, nil
	}

	prev := session.Status
	session.StatusBeforePause = &prev
	session.Status = models.StatusPaused
	if err := tx.Save(session).Error; err != nil {
		return false, err
	}
	return true, nil
}

// resume restores the pre-pause status. No-op unless paused.
func (s *SessionService) resume(session *models.GameSession) {
	if session.Status != models.StatusPaused || session.StatusBeforePause == nil {
		return
	}
	session.Status = *session.StatusBeforePause
	session.StatusBeforePause = nil
}

// Resume explicitly un-pauses a session (the admin heartbeat path does this
// implicitly). No-op when not paused.
func (s *SessionService) Resume(code string) error {
	return withSession(s.db, code, func(tx *gorm.DB, session *models.GameSession) error {
		if session.Status != models.StatusPaused {
			return nil
		}
		s.resume(session)
		return tx.Save(session).Error
	})
}

// ===========================================================================
// REDIS SNAPSHOT MIRROR
// ===========================================================================

const stateCacheTTL = 2 * time.Hour

// cacheState mirrors the latest snapshot into Redis for websocket late-sync.
// Best effort: the database stays the source of truth.
func (s *SessionService) cacheState(state *SessionState) {
	if s.redis == nil || state == nil {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		log.Printf("Failed to marshal state for session %s: %v", state.Code, err)
		return
	}
	if err := s.redis.Set(context.Background(), "session:"+state.Code, data, stateCacheTTL).Err(); err != nil {
		log.Printf("Failed to cache state for session %s: %v", state.Code, err)
	}
}

// GetCachedState reads the mirrored snapshot, or nil on a miss.
func (s *SessionService) GetCachedState(code string) *SessionState {
	if s.redis == nil {
		return nil
	}
	data, err := s.redis.Get(context.Background(), "session:"+NormalizeCode(code)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Redis error reading state for session %s: %v", code, err)
		}
		return nil
	}
	var state SessionState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		log.Printf("Failed to unmarshal cached state for session %s: %v", code, err)
		return nil
	}
	return &state
}
