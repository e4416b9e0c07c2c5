package services

import (
	"testing"
	"time"

	"pubtrivia/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartGame(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)

	// No teams yet.
	err := e.sessions.StartGame(created.Code)
	require.Error(t, err)
	assert.Equal(t, KindInvalidState, KindOf(err))

	joinTestTeam(t, e, created.Code, "The Quizzards")
	require.NoError(t, e.sessions.StartGame(created.Code))

	session := loadSession(t, e, created.Code)
	assert.Equal(t, models.StatusPlaying, session.Status)
	require.NotNil(t, session.CurrentRoundID)
	assert.Equal(t, fx.Round1.ID, *session.CurrentRoundID)
	require.NotNil(t, session.CurrentQuestionID)
	assert.Equal(t, fx.Q1.ID, *session.CurrentQuestionID)
	assert.NotNil(t, session.StartedAt)

	sr := loadSessionRound(t, e, session.ID, fx.Round1.ID)
	assert.Equal(t, models.RoundActive, sr.Status)
	assert.NotNil(t, sr.StartedAt)

	// Starting twice is rejected.
	err = e.sessions.StartGame(created.Code)
	require.Error(t, err)
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestAuthenticateAdmin(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)

	_, err := e.sessions.AuthenticateAdmin(created.Code, "wrong-token")
	require.Error(t, err)
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = e.sessions.AuthenticateAdmin(created.Code, "")
	require.Error(t, err)
	assert.Equal(t, KindForbidden, KindOf(err))

	session, err := e.sessions.AuthenticateAdmin(created.Code, created.AdminToken)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), session.AdminLastSeen, 5*time.Second)
}

func TestAuthenticateTeam(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	joined := joinTestTeam(t, e, created.Code, "The Quizzards")

	_, _, err := e.sessions.AuthenticateTeam(created.Code, "bogus")
	require.Error(t, err)
	assert.Equal(t, KindForbidden, KindOf(err))

	_, team, err := e.sessions.AuthenticateTeam(created.Code, joined.TeamToken)
	require.NoError(t, err)
	assert.Equal(t, joined.TeamID, team.ID)
}

func TestAutoPauseAndHeartbeatResume(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	joinTestTeam(t, e, created.Code, "The Quizzards")
	require.NoError(t, e.sessions.StartGame(created.Code))

	// Simulate an admin that went quiet past the timeout.
	require.NoError(t, e.db.Model(&models.GameSession{}).
		Where("code = ?", created.Code).
		Update("admin_last_seen", time.Now().UTC().Add(-time.Minute)).Error)

	state, err := e.sessions.GetState(created.Code, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, state.Status)

	session := loadSession(t, e, created.Code)
	require.NotNil(t, session.StatusBeforePause)
	assert.Equal(t, models.StatusPlaying, *session.StatusBeforePause)

	// The next admin heartbeat resumes the session.
	resumed, err := e.sessions.AuthenticateAdmin(created.Code, created.AdminToken)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlaying, resumed.Status)
	assert.Nil(t, resumed.StatusBeforePause)

	session = loadSession(t, e, created.Code)
	assert.Equal(t, models.StatusPlaying, session.Status)
	assert.Nil(t, session.StatusBeforePause)
}

func TestResumeNoOpWhenNotPaused(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)

	require.NoError(t, e.sessions.Resume(created.Code))
	session := loadSession(t, e, created.Code)
	assert.Equal(t, models.StatusLobby, session.Status)
}

func TestSetCurrentQuestion(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	joinTestTeam(t, e, created.Code, "The Quizzards")

	// Not while in the lobby.
	err := e.sessions.SetCurrentQuestion(created.Code, fx.Q2.ID)
	require.Error(t, err)
	assert.Equal(t, KindInvalidState, KindOf(err))

	require.NoError(t, e.sessions.StartGame(created.Code))
	require.NoError(t, e.sessions.SetCurrentQuestion(created.Code, fx.Q2.ID))

	session := loadSession(t, e, created.Code)
	require.NotNil(t, session.CurrentQuestionID)
	assert.Equal(t, fx.Q2.ID, *session.CurrentQuestionID)

	// Question from another round is rejected.
	err = e.sessions.SetCurrentQuestion(created.Code, fx.QRanking.ID)
	require.Error(t, err)
	assert.Equal(t, KindInvalidState, KindOf(err))

	// Unknown question.
	err = e.sessions.SetCurrentQuestion(created.Code, 9999)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestToggleTeamNavigation(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)

	require.NoError(t, e.sessions.ToggleTeamNavigation(created.Code, true))
	assert.True(t, loadSession(t, e, created.Code).AllowTeamNavigation)

	require.NoError(t, e.sessions.ToggleTeamNavigation(created.Code, false))
	assert.False(t, loadSession(t, e, created.Code).AllowTeamNavigation)
}

func TestSubmitAnswerLifecycle(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	team := joinTestTeam(t, e, created.Code, "The Quizzards")
	require.NoError(t, e.sessions.StartGame(created.Code))

	require.NoError(t, e.sessions.SubmitAnswer(created.Code, team.TeamID, &SubmitAnswerRequest{
		QuestionID: fx.Q1.ID, AnswerText: "41",
	}))

	// Resubmitting replaces the previous text.
	require.NoError(t, e.sessions.SubmitAnswer(created.Code, team.TeamID, &SubmitAnswerRequest{
		QuestionID: fx.Q1.ID, AnswerText: "42",
	}))

	var answers []models.TeamAnswer
	require.NoError(t, e.db.Where("team_id = ? AND question_id = ?", team.TeamID, fx.Q1.ID).Find(&answers).Error)
	require.Len(t, answers, 1)
	assert.Equal(t, "42", answers[0].AnswerText)
	assert.False(t, answers[0].IsLocked)

	// Questions outside the active round are closed to submissions.
	err := e.sessions.SubmitAnswer(created.Code, team.TeamID, &SubmitAnswerRequest{
		QuestionID: fx.QRanking.ID, AnswerText: "[\"1\",\"2\",\"3\"]",
	})
	require.Error(t, err)
	assert.Equal(t, KindInvalidState, KindOf(err))

	// After the round locks, a stale client gets an explicit rejection.
	require.NoError(t, e.sessions.LockRound(created.Code))
	err = e.sessions.SubmitAnswer(created.Code, team.TeamID, &SubmitAnswerRequest{
		QuestionID: fx.Q1.ID, AnswerText: "too late",
	})
	require.Error(t, err)
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestSubmitAnswerLateJoinerCanAnswerActiveRound(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	joinTestTeam(t, e, created.Code, "Early Birds")
	require.NoError(t, e.sessions.StartGame(created.Code))

	late := joinTestTeam(t, e, created.Code, "Fashionably Late")
	require.True(t, late.JoinedLate)

	require.NoError(t, e.sessions.SubmitAnswer(created.Code, late.TeamID, &SubmitAnswerRequest{
		QuestionID: fx.Q1.ID, AnswerText: "42",
	}))
}

func TestCompleteRoundResetsQuestionForReview(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	joinTestTeam(t, e, created.Code, "The Quizzards")
	require.NoError(t, e.sessions.StartGame(created.Code))
	require.NoError(t, e.sessions.SetCurrentQuestion(created.Code, fx.Q2.ID))

	require.NoError(t, e.sessions.LockRound(created.Code))
	assert.Equal(t, models.StatusScoring, loadSession(t, e, created.Code).Status)

	require.NoError(t, e.sessions.CompleteRound(created.Code))
	session := loadSession(t, e, created.Code)
	assert.Equal(t, models.StatusReviewing, session.Status)
	require.NotNil(t, session.CurrentQuestionID)
	assert.Equal(t, fx.Q1.ID, *session.CurrentQuestionID)
}

func TestStartNextRound(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	joinTestTeam(t, e, created.Code, "The Quizzards")
	require.NoError(t, e.sessions.StartGame(created.Code))

	// Only valid from review mode.
	_, err := e.sessions.StartNextRound(created.Code)
	require.Error(t, err)
	assert.Equal(t, KindInvalidState, KindOf(err))

	playThroughRoundOne(t, e, created.Code)

	result, err := e.sessions.StartNextRound(created.Code)
	require.NoError(t, err)
	assert.False(t, result.GameComplete)
	assert.Equal(t, 2, result.RoundNumber)
	assert.Equal(t, "Puzzles", result.RoundName)

	session := loadSession(t, e, created.Code)
	assert.Equal(t, models.StatusPlaying, session.Status)
	require.NotNil(t, session.CurrentRoundID)
	assert.Equal(t, fx.Round2.ID, *session.CurrentRoundID)
	require.NotNil(t, session.CurrentQuestionID)
	assert.Equal(t, fx.QRanking.ID, *session.CurrentQuestionID)
}

func TestStartNextRoundCompletesGame(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	joinTestTeam(t, e, created.Code, "The Quizzards")
	joinTestTeam(t, e, created.Code, "Beer Pressure")
	require.NoError(t, e.sessions.StartGame(created.Code))

	advanceToRoundTwo(t, e, created.Code)
	require.NoError(t, e.sessions.LockRound(created.Code))
	require.NoError(t, e.sessions.CompleteRound(created.Code))

	result, err := e.sessions.StartNextRound(created.Code)
	require.NoError(t, err)
	assert.True(t, result.GameComplete)
	require.Len(t, result.Standings, 2)
	assert.Equal(t, 1, result.Standings[0].Rank)
	assert.Equal(t, 2, result.Standings[1].Rank)

	session := loadSession(t, e, created.Code)
	assert.Equal(t, models.StatusCompleted, session.Status)
	assert.True(t, session.Terminal())
	assert.Nil(t, session.StatusBeforePause)
	assert.NotNil(t, session.CompletedAt)
}

func TestFinalizeOverwritesScores(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	a := joinTestTeam(t, e, created.Code, "Team A")
	b := joinTestTeam(t, e, created.Code, "Team B")

	require.NoError(t, e.sessions.Finalize(created.Code, []TeamScore{
		{Name: "Team A", Score: 40},
		{Name: "Team B", Score: 55},
	}))

	session := loadSession(t, e, created.Code)
	assert.Equal(t, models.StatusCompleted, session.Status)

	var teamA, teamB models.SessionTeam
	require.NoError(t, e.db.First(&teamA, a.TeamID).Error)
	require.NoError(t, e.db.First(&teamB, b.TeamID).Error)
	assert.Equal(t, 40, teamA.Score)
	assert.Equal(t, 55, teamB.Score)
}

func TestGetStateSnapshot(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	team := joinTestTeam(t, e, created.Code, "The Quizzards")
	require.NoError(t, e.sessions.StartGame(created.Code))

	require.NoError(t, e.sessions.SubmitAnswer(created.Code, team.TeamID, &SubmitAnswerRequest{
		QuestionID: fx.Q1.ID, AnswerText: "42",
	}))

	state, err := e.sessions.GetState(created.Code, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlaying, state.Status)
	assert.Equal(t, fx.Game.Name, state.GameName)
	require.NotNil(t, state.CurrentRound)
	assert.Equal(t, 1, state.CurrentRound.RoundNumber)
	require.NotNil(t, state.CurrentQuestion)
	assert.Equal(t, fx.Q1.ID, state.CurrentQuestion.ID)
	require.Len(t, state.Teams, 1)
	assert.True(t, state.Teams[0].HasAnsweredCurrent)
	require.Len(t, state.RoundProgress, 2)
	assert.Equal(t, 1, state.RoundProgress[0].SubmittedCount)
	assert.Equal(t, 0, state.RoundProgress[1].SubmittedCount)
	assert.Nil(t, state.YourSubmission)

	// A team-authenticated poll sees its own submission.
	var sessionTeam models.SessionTeam
	require.NoError(t, e.db.First(&sessionTeam, team.TeamID).Error)
	state, err = e.sessions.GetState(created.Code, &sessionTeam)
	require.NoError(t, err)
	require.NotNil(t, state.YourSubmission)
	assert.Equal(t, "42", state.YourSubmission.AnswerText)
}

func TestSnapshotHidesAnswersUntilRoundScored(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	joinTestTeam(t, e, created.Code, "The Quizzards")
	require.NoError(t, e.sessions.StartGame(created.Code))
	advanceToRoundTwo(t, e, created.Code)

	state, err := e.sessions.GetState(created.Code, nil)
	require.NoError(t, err)
	require.NotNil(t, state.CurrentQuestion)
	require.NotNil(t, state.CurrentQuestion.Ranking)
	for _, item := range state.CurrentQuestion.Ranking.Items {
		assert.Nil(t, item.CorrectRank)
	}

	require.NoError(t, e.sessions.LockRound(created.Code))
	require.NoError(t, e.sessions.CompleteRound(created.Code))

	state, err = e.sessions.GetState(created.Code, nil)
	require.NoError(t, err)
	require.NotNil(t, state.CurrentQuestion)
	require.NotNil(t, state.CurrentQuestion.Ranking)
	for _, item := range state.CurrentQuestion.Ranking.Items {
		assert.NotNil(t, item.CorrectRank)
	}
}

func TestTeamAnswersMergesParts(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	team := joinTestTeam(t, e, created.Code, "The Quizzards")
	require.NoError(t, e.sessions.StartGame(created.Code))
	advanceToRoundTwo(t, e, created.Code)

	require.NoError(t, e.sessions.SubmitAnswer(created.Code, team.TeamID, &SubmitAnswerRequest{
		QuestionID: fx.QMatching.ID, AnswerText: `["Paris","Kyoto"]`,
	}))
	require.NoError(t, e.sessions.LockRound(created.Code))

	resp, err := e.sessions.TeamAnswers(created.Code, team.TeamID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.RoundNumber)
	require.Len(t, resp.Answers, 2)

	matching := resp.Answers[1]
	assert.Equal(t, fx.QMatching.ID, matching.QuestionID)
	assert.JSONEq(t, `["Paris","Kyoto"]`, matching.AnswerText)
	assert.True(t, matching.IsLocked)
	require.NotNil(t, matching.PointsAwarded)
	assert.Equal(t, 2, *matching.PointsAwarded) // Paris right, Kyoto wrong
}
