package organizers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-events/ticketsync/internal/middleware"
	"github.com/aura-events/ticketsync/internal/models"
	"github.com/aura-events/ticketsync/internal/reconciler"
	"github.com/aura-events/ticketsync/internal/scheduler"
	"github.com/aura-events/ticketsync/pkg/queue"
	"github.com/aura-events/ticketsync/pkg/response"
)

// Store is the part of the config store the handler needs.
type Store interface {
	ListOrganizers(ctx context.Context) ([]models.OrganizerConfig, error)
	GetOrganizer(ctx context.Context, id uuid.UUID) (*models.OrganizerConfig, error)
	SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) (bool, error)
}

// SyncRunner runs and cancels organizer syncs in process.
type SyncRunner interface {
	RunOrganizer(ctx context.Context, id uuid.UUID) error
	Cancel(id uuid.UUID) bool
	Status() []scheduler.OrganizerStatus
}

// SyncEnqueuer hands sync requests to the worker.
type SyncEnqueuer interface {
	EnqueueSync(ctx context.Context, payload queue.SyncPayload) (string, error)
}

// OrganizerView is one entry of GET /organizers.
type OrganizerView struct {
	models.OrganizerConfig
	State   string               `json:"state"`
	LastRun *scheduler.RunRecord `json:"last_run,omitempty"`
}

// UpdateRequest is the body for PATCH /organizers/:id.
type UpdateRequest struct {
	Disabled *bool `json:"disabled" binding:"required"`
}

// Handler serves the organizer admin endpoints.
type Handler struct {
	store  Store
	runner SyncRunner
	jobs   SyncEnqueuer
	logger *zap.Logger
}

// NewHandler creates an organizers handler.
func NewHandler(store Store, runner SyncRunner, jobs SyncEnqueuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, runner: runner, jobs: jobs, logger: logger}
}

// List handles GET /organizers.
func (h *Handler) List(c *gin.Context) {
	orgs, err := h.store.ListOrganizers(c.Request.Context())
	if err != nil {
		h.logger.Error("list organizers failed", zap.Error(err))
		response.Internal(c, "failed to list organizers")
		return
	}
	status := make(map[uuid.UUID]scheduler.OrganizerStatus)
	for _, s := range h.runner.Status() {
		status[s.OrganizerID] = s
	}
	views := make([]OrganizerView, 0, len(orgs))
	for _, o := range orgs {
		v := OrganizerView{OrganizerConfig: o, State: reconciler.StateIdle.String()}
		if s, ok := status[o.ID]; ok {
			v.State = s.State
			v.LastRun = s.LastRun
		}
		views = append(views, v)
	}
	response.OK(c, views)
}

// Enqueue handles POST /organizers/:id/sync: the sync is run by the worker.
func (h *Handler) Enqueue(c *gin.Context) {
	org, ok := h.organizer(c)
	if !ok {
		return
	}
	jobID, err := h.jobs.EnqueueSync(c.Request.Context(), queue.SyncPayload{
		OrganizerID: org.ID,
		RequestedBy: middleware.Subject(c),
	})
	if err != nil {
		h.logger.Error("enqueue sync failed", zap.String("organizer_id", org.ID.String()), zap.Error(err))
		response.ServiceUnavailable(c, "failed to enqueue sync")
		return
	}
	response.Accepted(c, gin.H{"job_id": jobID, "organizer_id": org.ID})
}

// Run handles POST /organizers/:id/run: one synchronous sync.
func (h *Handler) Run(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organizer id")
		return
	}
	err = h.runner.RunOrganizer(c.Request.Context(), id)
	if err != nil {
		h.runError(c, id, err)
		return
	}
	response.OK(c, h.status(id))
}

func (h *Handler) runError(c *gin.Context, id uuid.UUID, err error) {
	var invalid *reconciler.ValidationError
	switch {
	case errors.Is(err, scheduler.ErrUnknownOrganizer):
		response.NotFound(c, "organizer not found")
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		response.Conflict(c, "sync already running")
	case errors.Is(err, context.Canceled):
		response.Conflict(c, "sync cancelled")
	case errors.As(err, &invalid):
		response.Unprocessable(c, "registry configuration is invalid", invalid.Problems)
	default:
		h.logger.Warn("sync failed", zap.String("organizer_id", id.String()), zap.Error(err))
		if phase, ok := reconciler.FailedPhase(err); ok && phase == reconciler.PhaseFetching {
			response.BadGateway(c, err.Error())
			return
		}
		response.Internal(c, err.Error())
	}
}

// Cancel handles POST /organizers/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organizer id")
		return
	}
	if !h.runner.Cancel(id) {
		response.Conflict(c, "no sync in progress")
		return
	}
	h.logger.Info("sync cancelled", zap.String("organizer_id", id.String()), zap.String("by", middleware.Subject(c)))
	response.Accepted(c, h.status(id))
}

// Update handles PATCH /organizers/:id. Disabling also cancels an in-flight sync.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organizer id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	found, err := h.store.SetDisabled(c.Request.Context(), id, *req.Disabled)
	if err != nil {
		h.logger.Error("update organizer failed", zap.Error(err))
		response.Internal(c, "failed to update organizer")
		return
	}
	if !found {
		response.NotFound(c, "organizer not found")
		return
	}
	if *req.Disabled {
		h.runner.Cancel(id)
	}
	h.logger.Info("organizer updated",
		zap.String("organizer_id", id.String()),
		zap.Bool("disabled", *req.Disabled),
		zap.String("by", middleware.Subject(c)),
	)
	response.OK(c, gin.H{"organizer_id": id, "disabled": *req.Disabled})
}

func (h *Handler) organizer(c *gin.Context) (*models.OrganizerConfig, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organizer id")
		return nil, false
	}
	org, err := h.store.GetOrganizer(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("load organizer failed", zap.Error(err))
		response.Internal(c, "failed to load organizer")
		return nil, false
	}
	if org == nil {
		response.NotFound(c, "organizer not found")
		return nil, false
	}
	return org, true
}

func (h *Handler) status(id uuid.UUID) scheduler.OrganizerStatus {
	for _, s := range h.runner.Status() {
		if s.OrganizerID == id {
			return s
		}
	}
	return scheduler.OrganizerStatus{OrganizerID: id, State: reconciler.StateIdle.String()}
}
