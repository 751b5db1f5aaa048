package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aura-events/ticketsync/internal/auth"
	"github.com/aura-events/ticketsync/internal/reconciler"
	"github.com/aura-events/ticketsync/internal/scheduler"
)

func newServer(t *testing.T, hub *Hub, svc *auth.JWTService) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", ServeWs(hub, svc, nil, zaptest.NewLogger(t)))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestServeWsFiltersByOrganizer(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	svc := auth.NewJWTService("secret", 1)
	srv := newServer(t, hub, svc)
	token, err := svc.Generate("ops@devcon.test", auth.RoleOperator)
	require.NoError(t, err)

	watched, other := uuid.New(), uuid.New()
	conn, _, err := dial(t, srv, "token="+token+"&organizer_id="+watched.String())
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(WSMessage{Event: EventSyncStarted, OrganizerID: other})
	hub.Broadcast(WSMessage{Event: EventSyncFinished, OrganizerID: watched, Data: []byte(`{"phase":"saving"}`)})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EventSyncFinished, msg.Event)
	assert.Equal(t, watched, msg.OrganizerID)
	assert.JSONEq(t, `{"phase":"saving"}`, string(msg.Data))

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWsRejects(t *testing.T) {
	hub := NewHub(nil)
	svc := auth.NewJWTService("secret", 1)
	srv := newServer(t, hub, svc)

	_, resp, err := dial(t, srv, "token=garbage")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	service, err := svc.Generate("sign-in", auth.RoleService)
	require.NoError(t, err)
	_, resp, err = dial(t, srv, "token="+service)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	op, err := svc.Generate("ops", auth.RoleOperator)
	require.NoError(t, err)
	_, resp, err = dial(t, srv, "token="+op+"&organizer_id=nope")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://dash.test")
	assert.True(t, checkOrigin([]string{"https://dash.test"})(req))
	assert.False(t, checkOrigin([]string{"https://other.test"})(req))
	assert.True(t, checkOrigin(nil)(req))
}

// Requires a Redis server at $TEST_REDIS_ADDR.
func TestPublisherReachesHub(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = client.Close() })

	hub := NewHub(zaptest.NewLogger(t))
	c := &Client{ID: "c1", hub: hub, send: make(chan WSMessage, 4)}
	hub.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Subscribe(ctx, client, hub, zaptest.NewLogger(t)) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	var notifier scheduler.Notifier = NewPublisher(client, zaptest.NewLogger(t))
	id := uuid.New()
	// The subscription may not be live yet; publish until the hub sees it.
	require.Eventually(t, func() bool {
		notifier.RunFinished(id, scheduler.RunRecord{Phase: reconciler.PhaseFetching, Error: "boom"})
		select {
		case msg := <-c.send:
			return msg.Event == EventSyncFinished && msg.OrganizerID == id
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWireEventNames(t *testing.T) {
	raw, err := json.Marshal(WSMessage{Event: EventSyncStarted, OrganizerID: uuid.Nil})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"event":"sync.started"`)
	assert.Equal(t, "sync.finished", EventSyncFinished)
}
