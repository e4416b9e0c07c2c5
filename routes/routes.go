package routes

import (
	"log"
	"net/http"

	"pubtrivia/handlers"
	"pubtrivia/middleware"
	"pubtrivia/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func SetupRoutes(
	router *gin.Engine,
	sessionHandler *handlers.SessionHandler,
	adminHandler *handlers.AdminHandler,
	teamHandler *handlers.TeamHandler,
	sessionService *services.SessionService,
	registryService *services.RegistryService,
	hub *services.Hub,
) {
	api := router.Group("/api")
	{
		api.GET("/games", sessionHandler.ListGames)

		sessions := api.Group("/sessions")
		{
			sessions.POST("", sessionHandler.CreateSession)
			sessions.POST("/:code/join", sessionHandler.JoinSession)
			sessions.POST("/:code/rejoin", sessionHandler.RejoinSession)
			sessions.GET("/:code/state", middleware.OptionalTeamAuth(sessionService), sessionHandler.GetState)
			sessions.GET("/:code/leaderboard", sessionHandler.GetLeaderboard)
		}

		admin := api.Group("/sessions/:code/admin")
		admin.Use(middleware.AdminAuth(sessionService))
		{
			admin.POST("/start", adminHandler.StartGame)
			admin.POST("/question", adminHandler.SetQuestion)
			admin.POST("/navigation", adminHandler.ToggleNavigation)
			admin.POST("/lock", adminHandler.LockRound)
			admin.GET("/scoring", adminHandler.GetScoringData)
			admin.POST("/score", adminHandler.ScoreAnswer)
			admin.POST("/complete-round", adminHandler.CompleteRound)
			admin.POST("/next-round", adminHandler.StartNextRound)
			admin.POST("/finalize", adminHandler.Finalize)
		}

		team := api.Group("/sessions/:code/team")
		team.Use(middleware.TeamAuth(sessionService))
		{
			team.POST("/answer", teamHandler.SubmitAnswer)
			team.GET("/answers", teamHandler.GetAnswers)
			team.GET("/results", teamHandler.GetResults)
		}
	}

	// WebSocket endpoint for push notifications. Admins and teams present
	// their bearer token as a query parameter; everyone else connects as a
	// spectator after a session lookup.
	router.GET("/ws/:code", func(c *gin.Context) {
		code := c.Param("code")
		token := c.Query("token")
		role := c.Query("role")

		name := "spectator"
		switch role {
		case "admin":
			if _, err := sessionService.AuthenticateAdmin(code, token); err != nil {
				log.Printf("Websocket admin auth failed for session %s: %v", code, err)
				c.JSON(services.HTTPStatus(err), gin.H{"error": err.Error()})
				return
			}
			name = "host"
		case "team":
			_, team, err := sessionService.AuthenticateTeam(code, token)
			if err != nil {
				log.Printf("Websocket team auth failed for session %s: %v", code, err)
				c.JSON(services.HTTPStatus(err), gin.H{"error": err.Error()})
				return
			}
			name = team.Name
		default:
			role = "spectator"
			if _, err := registryService.Lookup(code); err != nil {
				c.JSON(services.HTTPStatus(err), gin.H{"error": err.Error()})
				return
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for session %s: %v", code, err)
			return
		}

		hub.RegisterClient(conn, code, role, name)
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
