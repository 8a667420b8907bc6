package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Yellowatch/boxumco"
	"github.com/redis/go-redis/v9"
)

const defaultOutboxKey = "boxum:mail:outbox"

// ErrOutboxUnavailable wraps Redis failures.
var ErrOutboxUnavailable = errors.New("mail outbox unavailable")

// RedisOutbox is a FIFO of undelivered messages stored in a Redis list.
type RedisOutbox struct {
	redis redis.UniversalClient
	key   string
}

// NewRedisOutbox returns an outbox on key, or on boxum:mail:outbox when key
// is empty.
func NewRedisOutbox(client redis.UniversalClient, key string) *RedisOutbox {
	if key == "" {
		key = defaultOutboxKey
	}
	return &RedisOutbox{redis: client, key: key}
}

// Enqueue implements boxumco.RetryQueue.
func (o *RedisOutbox) Enqueue(ctx context.Context, msg boxumco.Email) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mail: encode: %w", err)
	}
	if err := o.redis.LPush(ctx, o.key, payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOutboxUnavailable, err)
	}
	return nil
}

// Dequeue waits up to timeout for a message. ok is false when none arrived.
func (o *RedisOutbox) Dequeue(ctx context.Context, timeout time.Duration) (msg boxumco.Email, ok bool, err error) {
	res, err := o.redis.BRPop(ctx, timeout, o.key).Result()
	if errors.Is(err, redis.Nil) {
		return boxumco.Email{}, false, nil
	}
	if err != nil {
		return boxumco.Email{}, false, fmt.Errorf("%w: %v", ErrOutboxUnavailable, err)
	}
	// res is [key, value]
	if len(res) != 2 {
		return boxumco.Email{}, false, fmt.Errorf("mail: unexpected BRPOP reply of %d elements", len(res))
	}
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return boxumco.Email{}, false, fmt.Errorf("mail: decode: %w", err)
	}
	return msg, true, nil
}

func (o *RedisOutbox) deferredKey() string { return o.key + ":deferred" }

// Defer parks msg until at. PromoteDue moves it back onto the queue once at
// has passed.
func (o *RedisOutbox) Defer(ctx context.Context, msg boxumco.Email, at time.Time) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mail: encode: %w", err)
	}
	z := redis.Z{Score: float64(at.UnixMilli()), Member: string(payload)}
	if err := o.redis.ZAdd(ctx, o.deferredKey(), z).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOutboxUnavailable, err)
	}
	return nil
}

// PromoteDue queues every deferred message whose time has come and returns
// how many it moved. Concurrent relays never promote the same message twice.
func (o *RedisOutbox) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	due, err := o.redis.ZRangeByScore(ctx, o.deferredKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOutboxUnavailable, err)
	}
	moved := 0
	for _, payload := range due {
		removed, err := o.redis.ZRem(ctx, o.deferredKey(), payload).Result()
		if err != nil {
			return moved, fmt.Errorf("%w: %v", ErrOutboxUnavailable, err)
		}
		if removed == 0 {
			continue
		}
		if err := o.redis.LPush(ctx, o.key, payload).Err(); err != nil {
			return moved, fmt.Errorf("%w: %v", ErrOutboxUnavailable, err)
		}
		moved++
	}
	return moved, nil
}

// Deferred returns the number of messages waiting for a retry time.
func (o *RedisOutbox) Deferred(ctx context.Context) (int64, error) {
	n, err := o.redis.ZCard(ctx, o.deferredKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOutboxUnavailable, err)
	}
	return n, nil
}

// Len returns the number of messages ready for delivery.
func (o *RedisOutbox) Len(ctx context.Context) (int64, error) {
	n, err := o.redis.LLen(ctx, o.key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOutboxUnavailable, err)
	}
	return n, nil
}
