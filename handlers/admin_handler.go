package handlers

import (
	"net/http"

	"pubtrivia/services"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves the host's session lifecycle commands. The admin auth
// middleware has already validated the bearer token and refreshed the
// heartbeat by the time these run.
type AdminHandler struct {
	sessions *services.SessionService
	scoring  *services.ScoringService
	hub      *services.Hub
}

func NewAdminHandler(sessions *services.SessionService, scoring *services.ScoringService, hub *services.Hub) *AdminHandler {
	return &AdminHandler{
		sessions: sessions,
		scoring:  scoring,
		hub:      hub,
	}
}

// notifyStateChanged tells connected clients to re-poll.
func (h *AdminHandler) notifyStateChanged(code string) {
	h.hub.BroadcastToSession(code, "state_changed", gin.H{})
}

func (h *AdminHandler) StartGame(c *gin.Context) {
	code := c.Param("code")
	if err := h.sessions.StartGame(code); err != nil {
		respondError(c, err)
		return
	}

	h.notifyStateChanged(code)
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

type setQuestionRequest struct {
	QuestionID uint `json:"question_id" binding:"required"`
}

func (h *AdminHandler) SetQuestion(c *gin.Context) {
	var req setQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code := c.Param("code")
	if err := h.sessions.SetCurrentQuestion(code, req.QuestionID); err != nil {
		respondError(c, err)
		return
	}

	h.notifyStateChanged(code)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "question_id": req.QuestionID})
}

type toggleNavigationRequest struct {
	AllowTeamNavigation *bool `json:"allow_team_navigation" binding:"required"`
}

func (h *AdminHandler) ToggleNavigation(c *gin.Context) {
	var req toggleNavigationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code := c.Param("code")
	if err := h.sessions.ToggleTeamNavigation(code, *req.AllowTeamNavigation); err != nil {
		respondError(c, err)
		return
	}

	h.notifyStateChanged(code)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "allow_team_navigation": *req.AllowTeamNavigation})
}

func (h *AdminHandler) LockRound(c *gin.Context) {
	code := c.Param("code")
	if err := h.sessions.LockRound(code); err != nil {
		respondError(c, err)
		return
	}

	h.notifyStateChanged(code)
	c.JSON(http.StatusOK, gin.H{"status": "locked"})
}

func (h *AdminHandler) GetScoringData(c *gin.Context) {
	data, err := h.scoring.ScoringGrid(c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, data)
}

func (h *AdminHandler) ScoreAnswer(c *gin.Context) {
	var req services.ScoreAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.sessions.ScoreAnswer(c.Param("code"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *AdminHandler) CompleteRound(c *gin.Context) {
	code := c.Param("code")
	if err := h.sessions.CompleteRound(code); err != nil {
		respondError(c, err)
		return
	}

	h.notifyStateChanged(code)
	c.JSON(http.StatusOK, gin.H{"status": "reviewing"})
}

func (h *AdminHandler) StartNextRound(c *gin.Context) {
	code := c.Param("code")
	result, err := h.sessions.StartNextRound(code)
	if err != nil {
		respondError(c, err)
		return
	}

	h.notifyStateChanged(code)
	if result.GameComplete {
		c.JSON(http.StatusOK, gin.H{"status": "game_complete", "standings": result.Standings})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "next_round",
		"round_number": result.RoundNumber,
		"round_name":   result.RoundName,
	})
}

type finalizeRequest struct {
	Teams []services.TeamScore `json:"teams" binding:"required"`
}

// Finalize is the trusted bulk-overwrite path; it bypasses per-answer
// bookkeeping by design.
func (h *AdminHandler) Finalize(c *gin.Context) {
	var req finalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code := c.Param("code")
	if err := h.sessions.Finalize(code, req.Teams); err != nil {
		respondError(c, err)
		return
	}

	h.notifyStateChanged(code)
	c.JSON(http.StatusOK, gin.H{"status": "session_finalized"})
}
