package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-events/ticketsync/internal/scheduler"
)

const (
	// Channel is the Redis pub/sub channel carrying sync events.
	Channel  = "ticketsync:sync-events"
	eventTTL = 5 * time.Second
)

// StartedData is the payload of EventSyncStarted.
type StartedData struct {
	StartedAt time.Time `json:"started_at"`
}

// Publisher publishes sync lifecycle events to Redis. It implements scheduler.Notifier.
type Publisher struct {
	client redis.Cmdable
	logger *zap.Logger
}

// NewPublisher creates a Redis publisher.
func NewPublisher(client redis.Cmdable, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, logger: logger}
}

// RunStarted publishes EventSyncStarted.
func (p *Publisher) RunStarted(organizerID uuid.UUID, at time.Time) {
	p.publish(EventSyncStarted, organizerID, StartedData{StartedAt: at})
}

// RunFinished publishes EventSyncFinished with the run record.
func (p *Publisher) RunFinished(organizerID uuid.UUID, rec scheduler.RunRecord) {
	p.publish(EventSyncFinished, organizerID, rec)
}

func (p *Publisher) publish(event string, organizerID uuid.UUID, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	body, err := json.Marshal(WSMessage{Event: event, OrganizerID: organizerID, Data: data})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTTL)
	defer cancel()
	if err := p.client.Publish(ctx, Channel, body).Err(); err != nil {
		p.logger.Warn("publish sync event failed", zap.String("event", event), zap.Error(err))
	}
}

// Subscribe relays every event published on Channel to hub until ctx is done.
func Subscribe(ctx context.Context, client *redis.Client, hub *Hub, logger *zap.Logger) error {
	pubsub := client.Subscribe(ctx, Channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m WSMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				logger.Debug("dropping malformed sync event", zap.Error(err))
				continue
			}
			hub.Broadcast(m)
		}
	}
}
