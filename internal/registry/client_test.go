package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *HTTPClient {
	return NewHTTPClient(Options{Timeout: 5 * time.Second}, nil)
}

func TestFetchItemsFollowsPagination(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/v1/organizers/org/events/conf/items/":
			if r.URL.Query().Get("page") == "2" {
				_, _ = w.Write([]byte(`{"results":[{"id":2,"admission":true,"personalized":true,"name":{"en":"VIP"}}],"next":null}`))
				return
			}
			next := srv.URL + "/api/v1/organizers/org/events/conf/items/?page=2"
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{{"id": 1, "admission": true, "personalized": true, "name": map[string]string{"en": "GA"}}},
				"next":    next,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient()
	items, err := c.FetchItems(context.Background(), Endpoint{BaseURL: srv.URL + "/api/v1/organizers/org", Token: "tok"}, "conf")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].ID)
	assert.Equal(t, "VIP", items[1].Name.String())
}

func TestFetchEventSettings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events/conf/settings/", r.URL.Path)
		_, _ = w.Write([]byte(`{"attendee_emails_asked":true,"attendee_emails_required":false}`))
	}))
	defer srv.Close()

	s, err := newTestClient().FetchEventSettings(context.Background(), Endpoint{BaseURL: srv.URL}, "conf")
	require.NoError(t, err)
	assert.True(t, s.AttendeeEmailsAsked)
	assert.False(t, s.AttendeeEmailsRequired)
}

func TestNon2xxReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Invalid token."}`))
	}))
	defer srv.Close()

	_, err := newTestClient().FetchEvent(context.Background(), Endpoint{BaseURL: srv.URL}, "conf")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, se.Body, "Invalid token")
}

func TestRateLimitedRequestIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"id":9,"name":"Main"}],"next":null}`))
	}))
	defer srv.Close()

	lists, err := newTestClient().FetchEventCheckinLists(context.Background(), Endpoint{BaseURL: srv.URL}, "conf")
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, int64(9), lists[0].ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRateLimitedWithoutRetryAfterFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient().FetchOrders(context.Background(), Endpoint{BaseURL: srv.URL}, "conf")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
}

func TestPushCheckinSendsRedeemBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkinrpc/redeem/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sec", body["secret"])
		assert.Equal(t, []any{float64(12)}, body["lists"])
		assert.Equal(t, "2026-03-01T10:00:00Z", body["datetime"])
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := newTestClient().PushCheckin(context.Background(), Endpoint{BaseURL: srv.URL}, "sec", "12", "2026-03-01T10:00:00Z")
	require.NoError(t, err)
}

func TestCancelPendingRequestsAbortsInFlight(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient()
	errc := make(chan error, 1)
	go func() {
		_, err := c.FetchOrders(context.Background(), Endpoint{BaseURL: srv.URL}, "conf")
		errc <- err
	}()

	<-started
	c.CancelPendingRequests()

	select {
	case err := <-errc:
		assert.True(t, IsCanceled(err), "unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("request was not cancelled")
	}

	// The client keeps working after a cancel.
	_, err := c.FetchEvent(context.Background(), Endpoint{BaseURL: "http://127.0.0.1:0"}, "conf")
	assert.False(t, IsCanceled(err))
}

func TestCheckedInAtUsesMostRecentEvent(t *testing.T) {
	p := Position{Checkins: []Checkin{
		{Datetime: "2026-03-01T10:00:00Z", Type: CheckinTypeEntry},
		{Datetime: "2026-03-01T12:00:00Z", Type: CheckinTypeExit},
	}}
	assert.Nil(t, p.CheckedInAt())

	p.Checkins = append(p.Checkins, Checkin{Datetime: "2026-03-01T13:30:00.123456Z", Type: CheckinTypeEntry})
	at := p.CheckedInAt()
	require.NotNil(t, at)
	assert.Equal(t, 13, at.Hour())

	assert.Nil(t, Position{}.CheckedInAt())
	assert.Nil(t, Position{Checkins: []Checkin{{Datetime: "garbage", Type: CheckinTypeEntry}}}.CheckedInAt())
}

func TestI18nString(t *testing.T) {
	assert.Equal(t, "Ticket", I18nString{"de": "Karte", "en": "Ticket"}.String())
	assert.Equal(t, "Karte", I18nString{"fr": "Billet", "de": "Karte"}.String())
	assert.Equal(t, "", I18nString{}.String())
}
