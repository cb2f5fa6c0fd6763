package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
)

var _ model.RevocationPublisher = (*RevocationPublisher)(nil)

// RevocationPublisher broadcasts revoked sessions over a pub/sub channel.
type RevocationPublisher struct {
	rdb     redis.UniversalClient
	channel string
}

func NewRevocationPublisher(rdb redis.UniversalClient, channel string) *RevocationPublisher {
	return &RevocationPublisher{rdb: rdb, channel: channel}
}

func (p *RevocationPublisher) PublishRevocation(ctx context.Context, event model.RevocationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal revocation event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish revocation event: %w", err)
	}
	return nil
}

// RevocationHandler reacts to a revocation event. It must tolerate
// duplicates.
type RevocationHandler func(ctx context.Context, event model.RevocationEvent) error

// RevocationSubscriber feeds channel messages to a handler.
type RevocationSubscriber struct {
	rdb     redis.UniversalClient
	channel string
	handler RevocationHandler
	logger  *logger.Logger
}

func NewRevocationSubscriber(rdb redis.UniversalClient, channel string, handler RevocationHandler, logger *logger.Logger) *RevocationSubscriber {
	return &RevocationSubscriber{rdb: rdb, channel: channel, handler: handler, logger: logger}
}

// Run blocks until ctx is cancelled. ready, when not nil, is closed once
// the subscription is confirmed.
func (s *RevocationSubscriber) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := s.rdb.Subscribe(ctx, s.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			s.handle(ctx, msg.Payload)
		}
	}
}

func (s *RevocationSubscriber) handle(ctx context.Context, payload string) {
	var event model.RevocationEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		s.logger.Warn("Revocation subscriber: malformed event",
			"error", err.Error())
		return
	}

	if err := s.handler(ctx, event); err != nil {
		s.logger.Error("Revocation subscriber: handler failed",
			"session_id", event.SessionID,
			"error", err.Error())
	}
}
