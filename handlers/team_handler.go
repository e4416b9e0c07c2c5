package handlers

import (
	"net/http"
	"strconv"

	"pubtrivia/middleware"
	"pubtrivia/models"
	"pubtrivia/services"

	"github.com/gin-gonic/gin"
)

// TeamHandler serves team-authenticated commands. The team auth middleware
// resolves the bearer token to a SessionTeam before these run.
type TeamHandler struct {
	sessions *services.SessionService
	scoring  *services.ScoringService
	hub      *services.Hub
}

func NewTeamHandler(sessions *services.SessionService, scoring *services.ScoringService, hub *services.Hub) *TeamHandler {
	return &TeamHandler{
		sessions: sessions,
		scoring:  scoring,
		hub:      hub,
	}
}

func teamFromContext(c *gin.Context) *models.SessionTeam {
	value, exists := c.Get(middleware.TeamKey)
	if !exists {
		return nil
	}
	return value.(*models.SessionTeam)
}

func (h *TeamHandler) SubmitAnswer(c *gin.Context) {
	team := teamFromContext(c)
	if team == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "team authentication required"})
		return
	}

	var req services.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code := c.Param("code")
	if err := h.sessions.SubmitAnswer(code, team.ID, &req); err != nil {
		respondError(c, err)
		return
	}

	h.hub.BroadcastToSession(code, "answer_submitted", gin.H{
		"team_id":     team.ID,
		"question_id": req.QuestionID,
	})

	c.JSON(http.StatusOK, gin.H{"status": "saved", "question_id": req.QuestionID})
}

func (h *TeamHandler) GetAnswers(c *gin.Context) {
	team := teamFromContext(c)
	if team == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "team authentication required"})
		return
	}

	var roundID *uint
	if raw := c.Query("round_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid round_id"})
			return
		}
		id := uint(parsed)
		roundID = &id
	}

	resp, err := h.sessions.TeamAnswers(c.Param("code"), team.ID, roundID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *TeamHandler) GetResults(c *gin.Context) {
	team := teamFromContext(c)
	if team == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "team authentication required"})
		return
	}

	results, err := h.scoring.ResultsFor(c.Param("code"), team.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, results)
}
