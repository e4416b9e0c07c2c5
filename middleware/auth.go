package middleware

import (
	"strings"

	"pubtrivia/services"

	"github.com/gin-gonic/gin"
)

const (
	// Context keys set by the auth middlewares.
	SessionKey = "session"
	TeamKey    = "team"
)

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// AdminAuth validates the admin bearer token for the session in the path,
// refreshing the admin heartbeat as a side effect.
func AdminAuth(sessions *services.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := sessions.AuthenticateAdmin(c.Param("code"), bearerToken(c))
		if err != nil {
			c.AbortWithStatusJSON(services.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Set(SessionKey, session)
		c.Next()
	}
}

// TeamAuth validates a team bearer token for the session in the path.
func TeamAuth(sessions *services.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, team, err := sessions.AuthenticateTeam(c.Param("code"), bearerToken(c))
		if err != nil {
			c.AbortWithStatusJSON(services.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Set(SessionKey, session)
		c.Set(TeamKey, team)
		c.Next()
	}
}

// OptionalTeamAuth attaches the team when a valid token is presented but
// lets anonymous spectators through.
func OptionalTeamAuth(sessions *services.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token != "" {
			if _, team, err := sessions.AuthenticateTeam(c.Param("code"), token); err == nil {
				c.Set(TeamKey, team)
			}
		}
		c.Next()
	}
}
