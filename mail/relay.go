package mail

import (
	"context"
	"errors"
	"time"

	"github.com/Yellowatch/boxumco"
	"go.uber.org/zap"
)

const (
	defaultRelayAttempts = 5
	defaultRelayBackoff  = 30 * time.Second
	defaultRelayMaxDelay = 15 * time.Minute
)

// Relay retries queued messages through a Mailer. A failed send is parked
// in the outbox for Backoff, doubling per attempt up to MaxBackoff.
type Relay struct {
	Outbox      *RedisOutbox
	Mailer      boxumco.Mailer
	Logger      *zap.Logger
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	// PollTimeout bounds each blocking dequeue so Run notices cancellation
	// and due deferred messages.
	PollTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Run drains the outbox until ctx is cancelled. Messages that keep failing
// are retried until MaxAttempts, then dropped with an error log.
func (r *Relay) Run(ctx context.Context) error {
	logger := r.logger()
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if _, err := r.Step(ctx); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			logger.Warn("outbox step failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// Step promotes due deferred messages, then processes at most one message and
// reports whether one was taken.
func (r *Relay) Step(ctx context.Context) (bool, error) {
	logger := r.logger()
	if _, err := r.Outbox.PromoteDue(ctx, r.now()); err != nil {
		return false, err
	}

	timeout := r.PollTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	msg, ok, err := r.Outbox.Dequeue(ctx, timeout)
	if err != nil || !ok {
		return false, err
	}

	// The message is ours now; it must reach the outbox again even when ctx
	// is cancelled during shutdown.
	keep := context.WithoutCancel(ctx)

	sendErr := r.Mailer.Send(ctx, msg)
	if sendErr == nil {
		logger.Info("queued email delivered",
			zap.String("kind", msg.Kind),
			zap.String("user_id", msg.UserID),
			zap.Int("attempts", msg.Attempts),
		)
		return true, nil
	}
	if ctx.Err() != nil {
		// Interrupted, not failed: requeue without spending an attempt.
		if err := r.Outbox.Enqueue(keep, msg); err != nil {
			return true, err
		}
		return true, ctx.Err()
	}

	msg.Attempts++
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultRelayAttempts
	}
	if msg.Attempts >= maxAttempts {
		logger.Error("dropping undeliverable email",
			zap.String("kind", msg.Kind),
			zap.String("user_id", msg.UserID),
			zap.Int("attempts", msg.Attempts),
			zap.Error(sendErr),
		)
		return true, nil
	}

	delay := r.delay(msg.Attempts)
	logger.Warn("email delivery failed, retry scheduled",
		zap.String("kind", msg.Kind),
		zap.String("user_id", msg.UserID),
		zap.Int("attempts", msg.Attempts),
		zap.Duration("retry_in", delay),
		zap.Error(sendErr),
	)
	if err := r.Outbox.Defer(keep, msg, r.now().Add(delay)); err != nil {
		return true, err
	}
	return true, nil
}

// delay is Backoff * 2^(attempts-1), capped at MaxBackoff.
func (r *Relay) delay(attempts int) time.Duration {
	base, ceiling := r.Backoff, r.MaxBackoff
	if base <= 0 {
		base = defaultRelayBackoff
	}
	if ceiling <= 0 {
		ceiling = defaultRelayMaxDelay
	}
	d := base
	for i := 1; i < attempts && d < ceiling; i++ {
		d *= 2
	}
	return min(d, ceiling)
}

func (r *Relay) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Relay) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop().Named("mail.relay")
	}
	return r.Logger.Named("mail.relay")
}
