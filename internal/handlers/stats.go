package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/capgo-event-probe/internal/models"
	"github.com/PratikDhanave/capgo-event-probe/internal/store"
)

// RegisterStatsRoutes registers the read side of the stub.
//
// GET /stats?event=...
// - Requires the capgkey header
// - Returns how many events with that name the stub has received
func RegisterStatsRoutes(r gin.IRoutes, st *store.MemoryStore) {
	r.GET("/stats", func(c *gin.Context) {
		name := c.Query("event")
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event is required"})
			return
		}

		count, err := st.CountEvents(c.Request.Context(), name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "count failed"})
			return
		}

		c.JSON(http.StatusOK, models.EventCount{Event: name, Count: count})
	})
}
