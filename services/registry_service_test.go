package services

import (
	"strings"
	"testing"

	"pubtrivia/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)

	resp := createTestSession(t, e, fx.Game.ID)

	assert.Len(t, resp.Code, codeLength)
	for _, c := range resp.Code {
		assert.Contains(t, codeCharset, string(c))
	}
	assert.NotEmpty(t, resp.AdminToken)
	assert.Equal(t, fx.Game.Name, resp.GameName)

	session := loadSession(t, e, resp.Code)
	assert.Equal(t, models.StatusLobby, session.Status)
	assert.Nil(t, session.StatusBeforePause)

	var roundCount int64
	require.NoError(t, e.db.Model(&models.SessionRound{}).
		Where("session_id = ? AND status = ?", session.ID, models.RoundPending).
		Count(&roundCount).Error)
	assert.EqualValues(t, 2, roundCount)
}

func TestCreateSessionUnknownGame(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.registry.CreateSession(&CreateSessionRequest{GameID: 999, AdminName: "Quizmaster"})
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestRandomCodeShape(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		code, err := randomCode()
		require.NoError(t, err)
		require.Len(t, code, codeLength)
		for _, c := range code {
			require.Contains(t, codeCharset, string(c))
		}
		seen[code] = true
	}
	// 1000 draws from a 36^6 space should essentially never collide.
	assert.GreaterOrEqual(t, len(seen), 999)
}

func TestJoinSession(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)

	resp := joinTestTeam(t, e, created.Code, "The Quizzards")
	assert.NotEmpty(t, resp.TeamToken)
	assert.False(t, resp.JoinedLate)

	// Codes are case-insensitive.
	second, err := e.registry.JoinSession(strings.ToUpper(created.Code), &JoinSessionRequest{TeamName: "Beer Pressure"})
	require.NoError(t, err)
	assert.NotEqual(t, resp.TeamToken, second.TeamToken)
}

func TestJoinSessionDuplicateName(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	joinTestTeam(t, e, created.Code, "The Quizzards")

	_, err := e.registry.JoinSession(created.Code, &JoinSessionRequest{TeamName: "the quizzards"})
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestJoinSessionFull(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)

	created, err := e.registry.CreateSession(&CreateSessionRequest{
		GameID: fx.Game.ID, AdminName: "Quizmaster", MaxTeams: 2,
	})
	require.NoError(t, err)

	joinTestTeam(t, e, created.Code, "Team One")
	joinTestTeam(t, e, created.Code, "Team Two")

	_, err = e.registry.JoinSession(created.Code, &JoinSessionRequest{TeamName: "Team Three"})
	require.Error(t, err)
	assert.Equal(t, KindFull, KindOf(err))
}

func TestJoinSessionInvalidName(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)

	_, err := e.registry.JoinSession(created.Code, &JoinSessionRequest{TeamName: " x "})
	require.Error(t, err)
	assert.Equal(t, KindInvalid, KindOf(err))
}

func TestJoinSessionUnknownCode(t *testing.T) {
	e := newTestEnv(t)
	seedGame(t, e.db)

	_, err := e.registry.JoinSession("nosuch", &JoinSessionRequest{TeamName: "Lost Team"})
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestJoinSessionAfterStartFlagsLate(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	joinTestTeam(t, e, created.Code, "Early Birds")
	require.NoError(t, e.sessions.StartGame(created.Code))

	resp := joinTestTeam(t, e, created.Code, "Fashionably Late")
	assert.True(t, resp.JoinedLate)
	require.NotNil(t, resp.CurrentRound)
	assert.Equal(t, 1, *resp.CurrentRound)
}

func TestJoinSessionLateJoinsDisabled(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)

	allow := false
	created, err := e.registry.CreateSession(&CreateSessionRequest{
		GameID: fx.Game.ID, AdminName: "Quizmaster", AllowLateJoins: &allow,
	})
	require.NoError(t, err)
	joinTestTeam(t, e, created.Code, "Early Birds")
	require.NoError(t, e.sessions.StartGame(created.Code))

	_, err = e.registry.JoinSession(created.Code, &JoinSessionRequest{TeamName: "Too Late"})
	require.Error(t, err)
	assert.Equal(t, KindClosed, KindOf(err))
}

func TestJoinSessionDuringScoring(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	joinTestTeam(t, e, created.Code, "Early Birds")
	require.NoError(t, e.sessions.StartGame(created.Code))
	require.NoError(t, e.sessions.LockRound(created.Code))

	_, err := e.registry.JoinSession(created.Code, &JoinSessionRequest{TeamName: "Mid Scoring"})
	require.Error(t, err)
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestJoinSessionCompleted(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	joinTestTeam(t, e, created.Code, "Early Birds")
	require.NoError(t, e.sessions.Finalize(created.Code, []TeamScore{}))

	_, err := e.registry.JoinSession(created.Code, &JoinSessionRequest{TeamName: "Ghost Team"})
	require.Error(t, err)
	assert.Equal(t, KindClosed, KindOf(err))
}

func TestRejoinSession(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)
	joined := joinTestTeam(t, e, created.Code, "The Quizzards")

	resp, err := e.registry.RejoinSession(created.Code, "THE QUIZZARDS")
	require.NoError(t, err)
	assert.Equal(t, joined.TeamToken, resp.TeamToken)
	assert.Equal(t, joined.TeamID, resp.TeamID)
	assert.True(t, resp.Rejoined)

	_, err = e.registry.RejoinSession(created.Code, "Never Joined")
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestLookupNormalizesCode(t *testing.T) {
	e := newTestEnv(t)
	fx := seedGame(t, e.db)
	created := createTestSession(t, e, fx.Game.ID)

	session, err := e.registry.Lookup("  " + strings.ToUpper(created.Code) + " ")
	require.NoError(t, err)
	assert.Equal(t, created.Code, session.Code)
}
