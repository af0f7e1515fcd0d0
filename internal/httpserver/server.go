package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/capgo-event-probe/internal/auth"
	"github.com/PratikDhanave/capgo-event-probe/internal/config"
	"github.com/PratikDhanave/capgo-event-probe/internal/handlers"
	"github.com/PratikDhanave/capgo-event-probe/internal/store"
)

// NewRouter wires the stub ingest server.
// Public: /health, /ready
// Authenticated: /private/events, /private/stats
func NewRouter(cfg config.Config, st *store.MemoryStore) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	// Liveness: confirms the process is running and reports the answer mode.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": cfg.Stub.Mode})
	})

	// Readiness: confirms the event recorder is usable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Auth group enforces the capgkey header like the real endpoint.
	private := r.Group("/private")
	private.Use(auth.CapgKeyMiddleware(cfg.CapgKey))

	handlers.RegisterEventRoutes(private, st, cfg.Stub)
	handlers.RegisterStatsRoutes(private, st)

	return r
}
