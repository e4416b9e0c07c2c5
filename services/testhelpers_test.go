package services

import (
	"testing"
	"time"

	"pubtrivia/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// In-memory sqlite gives each connection its own database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Category{},
		&models.Game{},
		&models.Round{},
		&models.Question{},
		&models.Answer{},
		&models.GameSession{},
		&models.SessionTeam{},
		&models.SessionRound{},
		&models.TeamAnswer{},
	))
	return db
}

type testEnv struct {
	db       *gorm.DB
	registry *RegistryService
	rounds   *RoundService
	scoring  *ScoringService
	sessions *SessionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	rounds := NewRoundService(db)
	scoring := NewScoringService(db)
	return &testEnv{
		db:       db,
		registry: NewRegistryService(db, 16),
		rounds:   rounds,
		scoring:  scoring,
		sessions: NewSessionService(db, nil, rounds, scoring, 30*time.Second),
	}
}

// gameFixture is a two-round game: a plain open-ended round followed by a
// round holding a ranking and a matching question.
type gameFixture struct {
	Game   models.Game
	Round1 models.Round
	Round2 models.Round

	Q1 models.Question // open-ended, 10 points
	Q2 models.Question // open-ended, 5 points

	QRanking  models.Question // 3 items, 1 point each
	QMatching models.Question // 2 pairs, 2 points each
}

func seedGame(t *testing.T, db *gorm.DB) *gameFixture {
	t.Helper()

	fx := &gameFixture{}

	fx.Game = models.Game{Name: "Tuesday Trivia", GameOrder: 1}
	require.NoError(t, db.Create(&fx.Game).Error)

	fx.Round1 = models.Round{GameID: fx.Game.ID, Name: "General Knowledge", RoundNumber: 1}
	require.NoError(t, db.Create(&fx.Round1).Error)
	fx.Round2 = models.Round{GameID: fx.Game.ID, Name: "Puzzles", RoundNumber: 2}
	require.NoError(t, db.Create(&fx.Round2).Error)

	fx.Q1 = models.Question{
		GameID: fx.Game.ID, RoundID: fx.Round1.ID,
		Type: models.QuestionTypeOpenEnded,
		Text: "What is the answer to everything?", QuestionNumber: 1, TotalPoints: 10,
	}
	require.NoError(t, db.Create(&fx.Q1).Error)
	require.NoError(t, db.Create(&models.Answer{
		QuestionID: fx.Q1.ID, AnswerText: "42", DisplayOrder: 1, Points: 10,
	}).Error)

	fx.Q2 = models.Question{
		GameID: fx.Game.ID, RoundID: fx.Round1.ID,
		Type: models.QuestionTypeOpenEnded,
		Text: "Capital of Australia?", QuestionNumber: 2, TotalPoints: 5,
	}
	require.NoError(t, db.Create(&fx.Q2).Error)
	require.NoError(t, db.Create(&models.Answer{
		QuestionID: fx.Q2.ID, AnswerText: "Canberra", DisplayOrder: 1, Points: 5,
	}).Error)

	fx.QRanking = models.Question{
		GameID: fx.Game.ID, RoundID: fx.Round2.ID,
		Type: models.QuestionTypeRanking,
		Text: "Order these planets by size, largest first", QuestionNumber: 3, TotalPoints: 3,
	}
	require.NoError(t, db.Create(&fx.QRanking).Error)
	for _, part := range []models.Answer{
		{QuestionID: fx.QRanking.ID, Text: "Saturn", DisplayOrder: 1, CorrectRank: intp(2), Points: 1},
		{QuestionID: fx.QRanking.ID, Text: "Jupiter", DisplayOrder: 2, CorrectRank: intp(1), Points: 1},
		{QuestionID: fx.QRanking.ID, Text: "Neptune", DisplayOrder: 3, CorrectRank: intp(3), Points: 1},
	} {
		p := part
		require.NoError(t, db.Create(&p).Error)
	}

	fx.QMatching = models.Question{
		GameID: fx.Game.ID, RoundID: fx.Round2.ID,
		Type: models.QuestionTypeMatching,
		Text: "Match the country to its capital", QuestionNumber: 4, TotalPoints: 4,
	}
	require.NoError(t, db.Create(&fx.QMatching).Error)
	for _, part := range []models.Answer{
		{QuestionID: fx.QMatching.ID, Text: "France", AnswerText: "Paris", DisplayOrder: 1, Points: 2},
		{QuestionID: fx.QMatching.ID, Text: "Japan", AnswerText: "Tokyo", DisplayOrder: 2, Points: 2},
	} {
		p := part
		require.NoError(t, db.Create(&p).Error)
	}

	return fx
}

func intp(n int) *int { return &n }

func createTestSession(t *testing.T, e *testEnv, gameID uint) *CreateSessionResponse {
	t.Helper()
	resp, err := e.registry.CreateSession(&CreateSessionRequest{GameID: gameID, AdminName: "Quizmaster"})
	require.NoError(t, err)
	return resp
}

func joinTestTeam(t *testing.T, e *testEnv, code, name string) *JoinSessionResponse {
	t.Helper()
	resp, err := e.registry.JoinSession(code, &JoinSessionRequest{TeamName: name})
	require.NoError(t, err)
	return resp
}

func loadSession(t *testing.T, e *testEnv, code string) *models.GameSession {
	t.Helper()
	var session models.GameSession
	require.NoError(t, e.db.Where("code = ?", NormalizeCode(code)).First(&session).Error)
	return &session
}

func loadSessionRound(t *testing.T, e *testEnv, sessionID, roundID uint) *models.SessionRound {
	t.Helper()
	var sr models.SessionRound
	require.NoError(t, e.db.Where("session_id = ? AND round_id = ?", sessionID, roundID).First(&sr).Error)
	return &sr
}

// playThroughRoundOne locks, completes and leaves the session in review mode
// for round one. No answers are submitted, so everything zero-scores at lock.
func playThroughRoundOne(t *testing.T, e *testEnv, code string) {
	t.Helper()
	require.NoError(t, e.sessions.LockRound(code))
	require.NoError(t, e.sessions.CompleteRound(code))
}

// advanceToRoundTwo runs a session from review of round one into active play
// of round two.
func advanceToRoundTwo(t *testing.T, e *testEnv, code string) {
	t.Helper()
	playThroughRoundOne(t, e, code)
	result, err := e.sessions.StartNextRound(code)
	require.NoError(t, err)
	require.False(t, result.GameComplete)
}
