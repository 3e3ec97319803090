package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"sealflow/internal/server/routes"
)

// RegisterRoutes builds the gin engine with sessions, CORS and every
// route group mounted.
func (s *Server) RegisterRoutes() http.Handler {
	r := gin.Default()

	store := cookie.NewStore([]byte(s.cfg.SessionSecret))
	r.Use(sessions.Sessions(s.cfg.SessionCookieName, store))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.GET("/health", s.healthHandler)

	routes.NewSigningRoutes(s).RegisterRoutes(r)
	routes.NewWorkflowRoutes(s).RegisterRoutes(r)
	routes.NewReminderRoutes(s).RegisterRoutes(r)

	return r
}

func (s *Server) healthHandler(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "up"})
		return
	}
	c.JSON(http.StatusOK, s.health.Health())
}
