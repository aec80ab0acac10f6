package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// IntentLedger records which appointment a booking intent committed as, so a
// replayed submit returns the existing appointment instead of creating a
// second one.
type IntentLedger interface {
	// Lookup returns the appointment committed for the intent, if any.
	Lookup(ctx context.Context, intentID uuid.UUID) (uuid.UUID, bool, error)
	// Record stores the intent -> appointment binding. If another writer got
	// there first, the already-recorded appointment ID is returned.
	Record(ctx context.Context, intentID, appointmentID uuid.UUID) (uuid.UUID, error)
}

type redisIntentLedger struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIntentLedger(client *redis.Client, ttl time.Duration) IntentLedger {
	return &redisIntentLedger{
		client: client,
		ttl:    ttl,
	}
}

func intentKey(id uuid.UUID) string {
	return fmt.Sprintf("intent:%s", id.String())
}

func (l *redisIntentLedger) Lookup(ctx context.Context, intentID uuid.UUID) (uuid.UUID, bool, error) {
	val, err := l.client.Get(ctx, intentKey(intentID)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("lookup intent: %w", err)
	}

	apptID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt intent entry %q: %w", val, err)
	}
	return apptID, true, nil
}

func (l *redisIntentLedger) Record(ctx context.Context, intentID, appointmentID uuid.UUID) (uuid.UUID, error) {
	key := intentKey(intentID)

	ok, err := l.client.SetNX(ctx, key, appointmentID.String(), l.ttl).Result()
	if err != nil {
		return uuid.Nil, fmt.Errorf("record intent: %w", err)
	}
	if ok {
		return appointmentID, nil
	}

	existing, found, err := l.Lookup(ctx, intentID)
	if err != nil {
		return uuid.Nil, err
	}
	if !found {
		// Entry expired between SetNX and Get, ours is as good as any.
		return appointmentID, nil
	}
	return existing, nil
}
