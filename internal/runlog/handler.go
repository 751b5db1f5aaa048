package runlog

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-events/ticketsync/pkg/response"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// Reader is the read side of Repository.
type Reader interface {
	ListByOrganizer(ctx context.Context, organizerID uuid.UUID, limit int) ([]Run, error)
	GetStats(ctx context.Context, organizerID uuid.UUID) (*Stats, error)
}

// Handler handles GET /organizers/:id/runs.
type Handler struct {
	repo Reader
}

// NewHandler creates a run log handler.
func NewHandler(repo Reader) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /organizers/:id/runs?limit=N.
func (h *Handler) List(c *gin.Context) {
	organizerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organizer id")
		return
	}
	limit := defaultLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = min(n, maxLimit)
	}
	runs, err := h.repo.ListByOrganizer(c.Request.Context(), organizerID, limit)
	if err != nil {
		response.Internal(c, "failed to list runs")
		return
	}
	stats, err := h.repo.GetStats(c.Request.Context(), organizerID)
	if err != nil {
		response.Internal(c, "failed to load run stats")
		return
	}
	response.OK(c, gin.H{"runs": runs, "stats": stats})
}
