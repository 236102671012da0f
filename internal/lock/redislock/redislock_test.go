package redislock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/require"
)

func setupTestLocker(attempts int) (*Locker, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	l := New(db, Options{Key: "test:lock", TTL: time.Second, Attempts: attempts, Backoff: time.Millisecond}, nil)
	l.token = func() string { return "token-1" }
	// No renewals unless a test drives the ticker.
	l.ticker = func(time.Duration) (<-chan time.Time, func()) { return nil, func() {} }
	return l, mock
}

func manualTicker(l *Locker) chan time.Time {
	ticks := make(chan time.Time)
	l.ticker = func(time.Duration) (<-chan time.Time, func()) { return ticks, func() {} }
	return ticks
}

func TestLocker_ExtendsLeaseWhileHeld(t *testing.T) {
	l, mock := setupTestLocker(1)
	defer mock.ClearExpect()
	ticks := manualTicker(l)

	mock.ExpectSetNX("test:lock", "token-1", time.Second).SetVal(true)
	mock.ExpectEval(extendScript, []string{"test:lock"}, "token-1", int64(1000)).SetVal(int64(1))
	mock.ExpectEval(extendScript, []string{"test:lock"}, "token-1", int64(1000)).SetVal(int64(1))
	mock.ExpectEval(releaseScript, []string{"test:lock"}, "token-1").SetVal(int64(1))

	unlock, err := l.Lock(context.Background())
	require.NoError(t, err)
	ticks <- time.Now()
	ticks <- time.Now()
	unlock()
	unlock()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_StopsExtendingOnceLost(t *testing.T) {
	l, mock := setupTestLocker(1)
	defer mock.ClearExpect()
	ticks := manualTicker(l)

	mock.ExpectSetNX("test:lock", "token-1", time.Second).SetVal(true)
	mock.ExpectEval(extendScript, []string{"test:lock"}, "token-1", int64(1000)).SetVal(int64(0))
	mock.ExpectEval(releaseScript, []string{"test:lock"}, "token-1").SetVal(int64(0))

	unlock, err := l.Lock(context.Background())
	require.NoError(t, err)
	ticks <- time.Now()
	unlock()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_AcquireAndRelease(t *testing.T) {
	l, mock := setupTestLocker(3)
	defer mock.ClearExpect()

	mock.ExpectSetNX("test:lock", "token-1", time.Second).SetVal(true)
	mock.ExpectEval(releaseScript, []string{"test:lock"}, "token-1").SetVal(int64(1))

	unlock, err := l.Lock(context.Background())
	require.NoError(t, err)
	unlock()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_RetriesThenSucceeds(t *testing.T) {
	l, mock := setupTestLocker(3)
	defer mock.ClearExpect()

	mock.ExpectSetNX("test:lock", "token-1", time.Second).SetVal(false)
	mock.ExpectSetNX("test:lock", "token-1", time.Second).SetVal(true)
	mock.ExpectEval(releaseScript, []string{"test:lock"}, "token-1").SetVal(int64(0))

	unlock, err := l.Lock(context.Background())
	require.NoError(t, err)
	unlock()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_GivesUpAfterAttempts(t *testing.T) {
	l, mock := setupTestLocker(2)
	defer mock.ClearExpect()

	mock.ExpectSetNX("test:lock", "token-1", time.Second).SetVal(false)
	mock.ExpectSetNX("test:lock", "token-1", time.Second).SetVal(false)

	_, err := l.Lock(context.Background())
	require.ErrorIs(t, err, ErrNotAcquired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLocker_RedisError(t *testing.T) {
	l, mock := setupTestLocker(2)
	defer mock.ClearExpect()

	mock.ExpectSetNX("test:lock", "token-1", time.Second).SetErr(errors.New("connection refused"))

	_, err := l.Lock(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotAcquired)
}

func TestLocker_ContextCancelled(t *testing.T) {
	l, mock := setupTestLocker(5)
	defer mock.ClearExpect()
	l.opts.Backoff = time.Hour

	mock.ExpectSetNX("test:lock", "token-1", time.Second).SetVal(false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Lock(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
