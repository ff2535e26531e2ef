package checkin

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// TicketLock serializes scans of the same ticket. The lock value is the
// acquiring scan's token so only the holder can release it; the TTL
// bounds how long a crashed scan can keep a ticket blocked.
type TicketLock struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewTicketLock(client *redis.Client, ttl time.Duration) *TicketLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &TicketLock{Client: client, TTL: ttl}
}

func lockKey(ticketID string) string {
	return "checkin_lock:" + ticketID
}

func (l *TicketLock) Acquire(ctx context.Context, ticketID, token string) (bool, error) {
	return l.Client.SetNX(ctx, lockKey(ticketID), token, l.TTL).Result()
}

func (l *TicketLock) Release(ctx context.Context, ticketID, token string) error {
	key := lockKey(ticketID)
	val, err := l.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already expired
	}
	if err != nil {
		return err
	}
	if val == token {
		_, err := l.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
