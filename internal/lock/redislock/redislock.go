// Package redislock serializes queue mutations across processes that share
// one store, using a single redis key with a per-holder token. The lease is
// extended every TTL/3 while held, so a slow mutation keeps exclusivity.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock stays held by someone else for
// every attempt.
var ErrNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another holder is left alone.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// extendScript resets the TTL (ARGV[2], milliseconds) only while the key
// still holds our token.
const extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

// Options configures a Locker.
type Options struct {
	Key      string
	TTL      time.Duration
	Attempts int
	Backoff  time.Duration
}

// Locker implements queue.Locker on redis.
type Locker struct {
	client redis.Cmdable
	opts   Options
	token  func() string
	ticker func(time.Duration) (<-chan time.Time, func())
	logger *slog.Logger
}

func newTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// New creates a Locker. Zero options fall back to defaults.
func New(client redis.Cmdable, opts Options, logger *slog.Logger) *Locker {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Key == "" {
		opts.Key = "admission:queue:lock"
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 20
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 25 * time.Millisecond
	}
	return &Locker{client: client, opts: opts, token: uuid.NewString, ticker: newTicker, logger: logger}
}

// Lock acquires the lock, retrying up to Attempts times. The returned func
// releases it.
func (l *Locker) Lock(ctx context.Context) (func(), error) {
	token := l.token()
	for attempt := 1; ; attempt++ {
		ok, err := l.client.SetNX(ctx, l.opts.Key, token, l.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring %s: %w", l.opts.Key, err)
		}
		if ok {
			return l.hold(token), nil
		}
		if attempt >= l.opts.Attempts {
			return nil, fmt.Errorf("%w: %s after %d attempts", ErrNotAcquired, l.opts.Key, attempt)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.opts.Backoff):
		}
	}
}

// hold keeps the lease alive until the returned func is called, then
// releases it.
func (l *Locker) hold(token string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			l.release(token)
		})
	}
}

func (l *Locker) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticks, halt := l.ticker(l.opts.TTL / 3)
	defer halt()

	for {
		select {
		case <-stop:
			return
		case <-ticks:
			if !l.extend(token) {
				return
			}
		}
	}
}

// extend pushes the lease out by TTL. It reports false once the lease is
// known to be lost.
func (l *Locker) extend(token string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), l.opts.TTL)
	defer cancel()

	n, err := l.client.Eval(ctx, extendScript, []string{l.opts.Key}, token, l.opts.TTL.Milliseconds()).Int64()
	if err != nil {
		l.logger.Warn("extending queue lock", "key", l.opts.Key, "error", err)
		return true
	}
	if n == 0 {
		l.logger.Error("queue lock lost while held", "key", l.opts.Key)
		return false
	}
	return true
}

func (l *Locker) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), l.opts.TTL)
	defer cancel()

	n, err := l.client.Eval(ctx, releaseScript, []string{l.opts.Key}, token).Int64()
	if err != nil {
		l.logger.Warn("releasing queue lock", "key", l.opts.Key, "error", err)
		return
	}
	if n == 0 {
		l.logger.Warn("queue lock expired before release", "key", l.opts.Key)
	}
}
