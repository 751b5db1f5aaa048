package redaction

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-events/ticketsync/internal/models"
	"github.com/aura-events/ticketsync/pkg/response"
)

// ConsentRequest is the body for POST /users/consent.
type ConsentRequest struct {
	Email        string `json:"email" binding:"required,email"`
	TermsVersion int    `json:"terms_version" binding:"required,min=1"`
}

// ConsentRecorder records terms acceptance and promotes redacted tickets.
type ConsentRecorder interface {
	AgreeToTerms(ctx context.Context, email string, version int) (*models.User, int, error)
}

// Handler serves the consent callback of the sign-in service.
type Handler struct {
	consent ConsentRecorder
	logger  *zap.Logger
}

// NewHandler creates a redaction handler.
func NewHandler(consent ConsentRecorder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{consent: consent, logger: logger}
}

// Consent handles POST /users/consent.
func (h *Handler) Consent(c *gin.Context) {
	var req ConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	user, promoted, err := h.consent.AgreeToTerms(c.Request.Context(), req.Email, req.TermsVersion)
	if err != nil {
		h.logger.Error("record consent failed", zap.Error(err))
		response.Internal(c, "failed to record consent")
		return
	}
	h.logger.Info("consent recorded",
		zap.String("user_id", user.ID.String()),
		zap.Int("terms_agreed", user.TermsAgreed),
		zap.Int("promoted", promoted),
	)
	response.OK(c, gin.H{
		"user":             user,
		"promoted_tickets": promoted,
	})
}
