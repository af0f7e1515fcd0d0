package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/capgo-event-probe/internal/config"
	"github.com/PratikDhanave/capgo-event-probe/internal/models"
	"github.com/PratikDhanave/capgo-event-probe/internal/store"
)

// malformedBody is served in malformed mode: a 200 whose body is not JSON.
const malformedBody = `{"ok":tru`

// RegisterEventRoutes registers the stand-in for the capgo events endpoint.
//
// POST /events
// - Requires the capgkey header (enforced by the group middleware)
// - Records every well-formed event before answering
// - Answers according to stub.Mode: ok, status, malformed or hang
func RegisterEventRoutes(r gin.IRoutes, st *store.MemoryStore, stub config.StubConfig) {
	r.POST("/events", func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		var req models.EventPayload
		if err := json.Unmarshal(raw, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}
		if req.Event == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event required"})
			return
		}

		if _, err := st.InsertEvent(c.Request.Context(), req.Event, req.Properties, raw); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "record failed"})
			return
		}

		switch stub.Mode {
		case config.StubModeStatus:
			c.JSON(stub.Status, gin.H{"error": http.StatusText(stub.Status)})
		case config.StubModeMalformed:
			c.Data(http.StatusOK, "application/json", []byte(malformedBody))
		case config.StubModeHang:
			// Never answer; return once the client gives up or the server shuts down.
			<-c.Request.Context().Done()
			c.Abort()
		default:
			c.JSON(http.StatusOK, models.EventAck{OK: true})
		}
	})
}
