// Package redisstore provides Redis-backed implementations of the
// bridge's store interfaces, for deployments where webhook deduplication
// must survive process restarts.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkoval/go-fit-bridge/internal/domain"
)

func eventKey(id string) string { return "webhook:event:" + id }

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

// EventStore keeps accepted webhook events in Redis. Insert relies on
// SETNX so deduplication stays atomic across processes.
type EventStore struct {
	client *redis.Client
}

// NewEventStore creates a Redis-backed event store.
func NewEventStore(client *redis.Client) *EventStore {
	return &EventStore{client: client}
}

func (s *EventStore) Insert(ctx context.Context, evt domain.WebhookEvent) (bool, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return false, fmt.Errorf("marshal event %s: %w", evt.ID, err)
	}
	inserted, err := s.client.SetNX(ctx, eventKey(evt.ID), data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx event %s: %w", evt.ID, err)
	}
	return inserted, nil
}

func (s *EventStore) Get(ctx context.Context, id string) (domain.WebhookEvent, bool, error) {
	data, err := s.client.Get(ctx, eventKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.WebhookEvent{}, false, nil
		}
		return domain.WebhookEvent{}, false, fmt.Errorf("redis get event %s: %w", id, err)
	}
	var evt domain.WebhookEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return domain.WebhookEvent{}, false, fmt.Errorf("unmarshal event %s: %w", id, err)
	}
	return evt, true, nil
}
