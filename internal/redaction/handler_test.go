package redaction

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-events/ticketsync/internal/models"
)

type fakeConsent struct {
	email   string
	version int
	err     error
}

func (f *fakeConsent) AgreeToTerms(_ context.Context, email string, version int) (*models.User, int, error) {
	f.email, f.version = email, version
	if f.err != nil {
		return nil, 0, f.err
	}
	return &models.User{ID: uuid.New(), Email: email, TermsAgreed: version}, 2, nil
}

func serve(h *Handler, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/users/consent", h.Consent)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/users/consent", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestConsentPromotesTickets(t *testing.T) {
	fake := &fakeConsent{}
	w := serve(NewHandler(fake, nil), `{"email":"a@x.com","terms_version":2}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a@x.com", fake.email)
	assert.Equal(t, 2, fake.version)
	assert.Contains(t, w.Body.String(), `"promoted_tickets":2`)
}

func TestConsentRejectsBadBody(t *testing.T) {
	w := serve(NewHandler(&fakeConsent{}, nil), `{"email":"not-an-email","terms_version":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(NewHandler(&fakeConsent{}, nil), `{"email":"a@x.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConsentStoreFailure(t *testing.T) {
	w := serve(NewHandler(&fakeConsent{err: errors.New("db down")}, nil), `{"email":"a@x.com","terms_version":1}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}
