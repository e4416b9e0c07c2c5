package handlers

import (
	"net/http"

	"pubtrivia/middleware"
	"pubtrivia/models"
	"pubtrivia/services"

	"github.com/gin-gonic/gin"
)

// SessionHandler serves the public session surface: creating, joining,
// polling state and the leaderboard. No bearer token is required here except
// the optional team token on state polls.
type SessionHandler struct {
	registry *services.RegistryService
	sessions *services.SessionService
	scoring  *services.ScoringService
	catalog  *services.CatalogService
	hub      *services.Hub
}

func NewSessionHandler(registry *services.RegistryService, sessions *services.SessionService, scoring *services.ScoringService, catalog *services.CatalogService, hub *services.Hub) *SessionHandler {
	return &SessionHandler{
		registry: registry,
		sessions: sessions,
		scoring:  scoring,
		catalog:  catalog,
		hub:      hub,
	}
}

func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if details := services.Details(err); details != nil {
		for k, v := range details {
			body[k] = v
		}
	}
	c.JSON(services.HTTPStatus(err), body)
}

func (h *SessionHandler) ListGames(c *gin.Context) {
	games, err := h.catalog.ListGames()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req services.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.registry.CreateSession(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *SessionHandler) JoinSession(c *gin.Context) {
	var req services.JoinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.registry.JoinSession(c.Param("code"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.hub.BroadcastToSession(c.Param("code"), "team_joined", gin.H{
		"team_name":   resp.TeamName,
		"joined_late": resp.JoinedLate,
	})

	c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) RejoinSession(c *gin.Context) {
	var req services.JoinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.registry.RejoinSession(c.Param("code"), req.TeamName)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) GetState(c *gin.Context) {
	var team *models.SessionTeam
	if value, exists := c.Get(middleware.TeamKey); exists {
		team = value.(*models.SessionTeam)
	}

	state, err := h.sessions.GetState(c.Param("code"), team)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

func (h *SessionHandler) GetLeaderboard(c *gin.Context) {
	board, err := h.scoring.LeaderboardFor(c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, board)
}
