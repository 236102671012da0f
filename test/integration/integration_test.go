package integration_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rpggio/admission/internal/admission"
	"github.com/rpggio/admission/internal/domain/audit"
	"github.com/rpggio/admission/internal/domain/member"
	"github.com/rpggio/admission/internal/domain/queue"
	"github.com/rpggio/admission/internal/domain/report"
	"github.com/rpggio/admission/internal/lock/redislock"
	"github.com/rpggio/admission/internal/metrics"
	"github.com/rpggio/admission/internal/notify"
	"github.com/rpggio/admission/internal/sqlite"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db        *sqlite.DB
	metrics   *metrics.Collector
	members   *member.Service
	audits    *audit.Service
	queue     *queue.Service
	reports   *report.Service
	admission *admission.Service
}

func newTestEnv(t *testing.T, dsn string, locker queue.Locker) *testEnv {
	t.Helper()
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { _ = db.Close() })

	tiers, err := member.NewTierTable([]member.Reason{
		{Code: "veteran", Label: "Veteran", Tier: 1},
		{Code: "resident", Label: "Resident", Tier: 2},
	}, 5, 1, 5)
	require.NoError(t, err)

	env := &testEnv{db: db, metrics: metrics.New("integration")}
	env.members = member.NewService(sqlite.NewMemberRepository(db), tiers, nil)
	env.audits = audit.NewService(sqlite.NewAuditRepository(db), nil)
	env.queue = queue.NewService(sqlite.NewTicketRepository(db), env.members, tiers, env.audits,
		queue.Options{Locker: locker, Observer: env.metrics}, nil)
	env.reports = report.NewService(env.queue, env.members, nil)
	dispatcher := notify.NewDispatcher(notify.NewLogNotifier(nil), notify.Options{}, nil)
	env.admission = admission.NewService(env.members, env.queue, env.audits, dispatcher, env.metrics, nil)
	return env
}

func (e *testEnv) join(t *testing.T, externalID, reason string) *admission.JoinResult {
	t.Helper()
	res, err := e.admission.Join(context.Background(), admission.JoinRequest{
		ExternalID: externalID, DisplayName: "Applicant " + externalID, Reason: reason,
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) rank(t *testing.T, memberID string) int {
	t.Helper()
	status, err := e.reports.Position(context.Background(), memberID)
	require.NoError(t, err)
	require.True(t, status.Queued())
	return status.Rank
}

// requireDenseListing checks that ranks run 1..n and positions in each tier
// run 1..k.
func requireDenseListing(t *testing.T, entries []queue.Entry) {
	t.Helper()
	next := map[int]int{}
	for i, e := range entries {
		require.Equal(t, i+1, e.Rank)
		next[e.Ticket.Tier]++
		require.Equal(t, next[e.Ticket.Tier], e.Ticket.Position, "tier %d", e.Ticket.Tier)
	}
}

func TestIntegration_RemoveThenReprioritize(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ":memory:", nil)

	a := env.join(t, "a", "veteran")
	b := env.join(t, "b", "veteran")
	c := env.join(t, "c", "resident")
	require.Equal(t, []int{1, 2, 3}, []int{a.Rank, b.Rank, c.Rank})

	closed, err := env.admission.Remove(ctx, "op", a.Member.ID)
	require.NoError(t, err)
	require.True(t, closed)
	require.Equal(t, 1, env.rank(t, b.Member.ID))
	require.Equal(t, 2, env.rank(t, c.Member.ID))

	placement, err := env.admission.Reprioritize(ctx, "op", c.Member.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 2, placement.Ticket.Position)
	require.Equal(t, 2, placement.Rank)
	require.Equal(t, 1, env.rank(t, b.Member.ID))

	entries, err := env.reports.Listing(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	requireDenseListing(t, entries)

	summary, err := env.reports.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Active)
	require.Equal(t, 1, summary.Removed)
	require.Equal(t, []report.TierCount{{Tier: 1, Active: 2}}, summary.Tiers)

	logged, err := env.audits.List(ctx, audit.ListOptions{OperatorID: "op"})
	require.NoError(t, err)
	require.Len(t, logged, 2)

	expected := `
# HELP integration_queue_active_tickets Current number of active tickets per tier
# TYPE integration_queue_active_tickets gauge
integration_queue_active_tickets{tier="1"} 2
integration_queue_active_tickets{tier="2"} 0
`
	require.NoError(t, testutil.GatherAndCompare(env.metrics.Registry(), strings.NewReader(expected),
		"integration_queue_active_tickets"))
}

func TestIntegration_ReasonChangeAndDeactivation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, ":memory:", nil)

	v := env.join(t, "v", "veteran")
	r := env.join(t, "r", "resident")
	g := env.join(t, "g", "unlisted")
	require.Equal(t, 5, g.Member.Tier)

	m, placement, err := env.admission.ChangeReason(ctx, "op", g.Member.ID, "veteran")
	require.NoError(t, err)
	require.Equal(t, 1, m.Tier)
	require.NotNil(t, placement)
	require.Equal(t, 2, placement.Rank)
	require.Equal(t, 3, env.rank(t, r.Member.ID))

	_, err = env.admission.SetActive(ctx, "op", v.Member.ID, false)
	require.NoError(t, err)
	require.Equal(t, 1, env.rank(t, v.Member.ID), "deactivation never touches tickets")

	_, err = env.admission.Join(ctx, admission.JoinRequest{ExternalID: "v", DisplayName: "V"})
	require.ErrorIs(t, err, admission.ErrMemberInactive)

	res, err := env.admission.Broadcast(ctx, "op", "doors open at six")
	require.NoError(t, err)
	require.Equal(t, notify.BroadcastResult{Sent: 2, Total: 2}, res)

	history, err := env.queue.History(ctx, g.Member.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, 1, history[0].Tier)
}

// TestIntegration_SharedStoreWithRedisLock runs two queue services against one
// database file, serialized only by the redis lock.
func TestIntegration_SharedStoreWithRedisLock(t *testing.T) {
	addr := os.Getenv("ADMISSION_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ADMISSION_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())

	key := fmt.Sprintf("admission:test:%s", t.Name())
	dsn := filepath.Join(t.TempDir(), "shared.db")
	lockOpts := redislock.Options{Key: key, Attempts: 200}
	envs := []*testEnv{
		newTestEnv(t, dsn, redislock.New(rdb, lockOpts, nil)),
		newTestEnv(t, dsn, redislock.New(rdb, lockOpts, nil)),
	}

	const joins = 30
	var wg sync.WaitGroup
	errs := make(chan error, joins)
	for i := 0; i < joins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reason := "veteran"
			if i%3 == 0 {
				reason = "resident"
			}
			_, err := envs[i%2].admission.Join(ctx, admission.JoinRequest{
				ExternalID: fmt.Sprintf("shared-%d", i), DisplayName: "Shared", Reason: reason,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := envs[0].reports.Listing(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, joins)
	requireDenseListing(t, entries)
}
