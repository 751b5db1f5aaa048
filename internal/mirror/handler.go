package mirror

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/ticketsync/internal/middleware"
	"github.com/aura-events/ticketsync/pkg/response"
)

// CheckInStore records local check-ins.
type CheckInStore interface {
	CheckIn(ctx context.Context, ticketID uuid.UUID, checker string, at time.Time) (bool, error)
}

// Handler serves the door-scanner endpoint. Check-ins recorded here are pushed to the
// registry by the next sync.
type Handler struct {
	store  CheckInStore
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a mirror handler.
func NewHandler(store CheckInStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger, now: time.Now}
}

// CheckIn handles POST /tickets/:id/checkin. The authenticated operator is recorded as checker.
func (h *Handler) CheckIn(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid ticket id")
		return
	}
	checker := middleware.Subject(c)
	at := h.now().UTC()
	ok, err := h.store.CheckIn(c.Request.Context(), id, checker, at)
	if err != nil {
		h.logger.Error("check-in failed", zap.String("ticket_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to check in ticket")
		return
	}
	if !ok {
		response.Conflict(c, "ticket unknown or already checked in")
		return
	}
	h.logger.Info("ticket checked in", zap.String("ticket_id", id.String()), zap.String("checker", checker))
	response.OK(c, gin.H{"ticket_id": id, "checker_email": checker, "local_checkin_at": at})
}
