package admission_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rpggio/admission/internal/admission"
	"github.com/rpggio/admission/internal/domain/audit"
	"github.com/rpggio/admission/internal/domain/member"
	"github.com/rpggio/admission/internal/domain/queue"
	"github.com/rpggio/admission/internal/notify"
	"github.com/rpggio/admission/internal/sqlite"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	mu   sync.Mutex
	msgs []notify.Message
	fail map[string]bool
}

func (b *inbox) Notify(_ context.Context, msg notify.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail[msg.ExternalID] {
		return errors.New("blocked")
	}
	b.msgs = append(b.msgs, msg)
	return nil
}

func (b *inbox) kinds() []notify.Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []notify.Kind
	for _, m := range b.msgs {
		out = append(out, m.Kind)
	}
	return out
}

type broadcastCounter struct{ sent, failed int }

func (c *broadcastCounter) ObserveBroadcast(sent, failed int) {
	c.sent += sent
	c.failed += failed
}

type env struct {
	svc     *admission.Service
	members *member.Service
	queue   *queue.Service
	audits  *audit.Service
	inbox   *inbox
	counter *broadcastCounter
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, queue.Options{}, nil)
}

// newEnvWith builds an env whose workflow sees the queue through wrap, when
// wrap is non-nil.
func newEnvWith(t *testing.T, opts queue.Options, wrap func(admission.Queue) admission.Queue) *env {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	tiers, err := member.NewTierTable([]member.Reason{
		{Code: "veteran", Label: "Veteran", Tier: 1},
		{Code: "resident", Label: "Resident", Tier: 2},
	}, 3, 1, 3)
	require.NoError(t, err)

	e := &env{inbox: &inbox{}, counter: &broadcastCounter{}}
	e.members = member.NewService(sqlite.NewMemberRepository(db), tiers, nil)
	e.audits = audit.NewService(sqlite.NewAuditRepository(db), nil)
	e.queue = queue.NewService(sqlite.NewTicketRepository(db), e.members, tiers, e.audits, opts, nil)
	var q admission.Queue = e.queue
	if wrap != nil {
		q = wrap(q)
	}
	dispatcher := notify.NewDispatcher(e.inbox, notify.Options{}, nil)
	e.svc = admission.NewService(e.members, q, e.audits, dispatcher, e.counter, nil)
	return e
}

func (e *env) join(t *testing.T, ext, reason string) *admission.JoinResult {
	t.Helper()
	res, err := e.svc.Join(context.Background(), admission.JoinRequest{ExternalID: ext, DisplayName: "Name " + ext, Reason: reason})
	require.NoError(t, err)
	return res
}

func TestJoin_IsIdempotent(t *testing.T) {
	e := newEnv(t)

	first := e.join(t, "u1", "resident")
	require.True(t, first.NewMember)
	require.False(t, first.AlreadyQueued)
	require.Equal(t, 1, first.Rank)
	require.Equal(t, 2, first.Ticket.Tier)

	vet := e.join(t, "u2", "veteran")
	require.Equal(t, 1, vet.Rank)

	again := e.join(t, "u1", "resident")
	require.False(t, again.NewMember)
	require.True(t, again.AlreadyQueued)
	require.Equal(t, first.Ticket.ID, again.Ticket.ID)
	require.Equal(t, 2, again.Rank)

	require.Equal(t, []notify.Kind{notify.KindRegistered, notify.KindRegistered}, e.inbox.kinds())
}

func TestJoin_RepeatAtCapacityReusesTicket(t *testing.T) {
	ctx := context.Background()
	e := newEnvWith(t, queue.Options{MaxActive: 1}, nil)

	first := e.join(t, "a", "resident")
	again := e.join(t, "a", "resident")
	require.True(t, again.AlreadyQueued)
	require.Equal(t, first.Ticket.ID, again.Ticket.ID)
	require.Equal(t, 1, again.Rank)

	_, err := e.svc.Join(ctx, admission.JoinRequest{ExternalID: "b", DisplayName: "B"})
	require.ErrorIs(t, err, queue.ErrQueueFull)
}

func TestJoin_InactiveMemberRejected(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	res := e.join(t, "u1", "resident")
	_, err := e.svc.Serve(ctx, "op", res.Member.ID)
	require.NoError(t, err)
	_, err = e.svc.SetActive(ctx, "op", res.Member.ID, false)
	require.NoError(t, err)

	_, err = e.svc.Join(ctx, admission.JoinRequest{ExternalID: "u1", DisplayName: "x"})
	require.ErrorIs(t, err, admission.ErrMemberInactive)
}

func TestPromoteDemote(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.join(t, "a", "veteran")
	b := e.join(t, "b", "resident")

	p, err := e.svc.Promote(ctx, "op", b.Member.ID)
	require.NoError(t, err)
	require.Equal(t, 1, p.Ticket.Tier)
	require.Equal(t, 2, p.Rank)

	_, err = e.svc.Promote(ctx, "op", a.Member.ID)
	require.ErrorIs(t, err, admission.ErrTierLimit)

	p, err = e.svc.Demote(ctx, "op", a.Member.ID)
	require.NoError(t, err)
	require.Equal(t, 2, p.Ticket.Tier)
	require.Equal(t, 2, p.Rank)

	_, err = e.svc.Demote(ctx, "op", a.Member.ID)
	require.NoError(t, err)
	_, err = e.svc.Demote(ctx, "op", a.Member.ID)
	require.ErrorIs(t, err, admission.ErrTierLimit)

	_, err = e.svc.Promote(ctx, "op", "nobody")
	require.ErrorIs(t, err, queue.ErrNotQueued)

	entries, err := e.audits.List(ctx, audit.ListOptions{OperatorID: "op"})
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestMoveServeRemove(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.join(t, "a", "resident")
	b := e.join(t, "b", "resident")
	c := e.join(t, "c", "resident")

	p, err := e.svc.Move(ctx, "op", c.Member.ID, 0)
	require.NoError(t, err)
	require.Equal(t, 1, p.Rank)

	ok, err := e.svc.Serve(ctx, "op", c.Member.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = e.svc.Remove(ctx, "op", a.Member.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = e.svc.Remove(ctx, "op", a.Member.ID)
	require.NoError(t, err)
	require.False(t, ok)

	rank, err := e.queue.RankOf(ctx, b.Member.ID)
	require.NoError(t, err)
	require.Equal(t, 1, rank)

	require.Equal(t, []notify.Kind{
		notify.KindRegistered, notify.KindRegistered, notify.KindRegistered,
		notify.KindPositionChanged, notify.KindServed, notify.KindRemoved,
	}, e.inbox.kinds())
}

func TestChangeReason_RequeuesWhenTierChanges(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.join(t, "a", "veteran")
	b := e.join(t, "b", "resident")

	m, p, err := e.svc.ChangeReason(ctx, "op", b.Member.ID, "veteran")
	require.NoError(t, err)
	require.Equal(t, 1, m.Tier)
	require.NotNil(t, p)
	require.Equal(t, 1, p.Ticket.Tier)
	require.Equal(t, 2, p.Ticket.Position)

	m, p, err = e.svc.ChangeReason(ctx, "op", b.Member.ID, "veteran")
	require.NoError(t, err)
	require.Equal(t, 1, m.Tier)
	require.Nil(t, p)

	action := audit.ActionChangeReason
	entries, err := e.audits.List(ctx, audit.ListOptions{Action: &action})
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

// busyQueue fails the next reprioritize calls with contention.
type busyQueue struct {
	admission.Queue
	failures int
}

func (q *busyQueue) Reprioritize(ctx context.Context, operatorID, memberID string, tier int) (*queue.Ticket, error) {
	if q.failures > 0 {
		q.failures--
		return nil, queue.ErrContention
	}
	return q.Queue.Reprioritize(ctx, operatorID, memberID, tier)
}

func TestChangeReason_RetryAfterFailedRequeue(t *testing.T) {
	ctx := context.Background()
	busy := &busyQueue{failures: 1}
	e := newEnvWith(t, queue.Options{}, func(q admission.Queue) admission.Queue {
		busy.Queue = q
		return busy
	})
	b := e.join(t, "b", "resident")

	_, _, err := e.svc.ChangeReason(ctx, "op", b.Member.ID, "veteran")
	require.ErrorIs(t, err, queue.ErrContention)
	stale, err := e.queue.Active(ctx, b.Member.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stale.Tier)

	m, p, err := e.svc.ChangeReason(ctx, "op", b.Member.ID, "veteran")
	require.NoError(t, err)
	require.Equal(t, 1, m.Tier)
	require.NotNil(t, p)
	require.Equal(t, 1, p.Ticket.Tier)

	current, err := e.queue.Active(ctx, b.Member.ID)
	require.NoError(t, err)
	require.Equal(t, m.Tier, current.Tier)
}

func TestChangeReason_NotQueued(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m, err := e.members.Register(ctx, member.RegisterRequest{ExternalID: "x", DisplayName: "X", Reason: "resident"})
	require.NoError(t, err)

	updated, p, err := e.svc.ChangeReason(ctx, "op", m.ID, "unknown-reason")
	require.NoError(t, err)
	require.Nil(t, p)
	require.Equal(t, 3, updated.Tier)
}

func TestBroadcast(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.join(t, "a", "resident")
	e.join(t, "b", "resident")
	c := e.join(t, "c", "resident")
	_, err := e.svc.SetActive(ctx, "op", c.Member.ID, false)
	require.NoError(t, err)
	e.inbox.fail = map[string]bool{"b": true}

	res, err := e.svc.Broadcast(ctx, "op", " maintenance tonight ")
	require.NoError(t, err)
	require.Equal(t, notify.BroadcastResult{Sent: 1, Failed: 1, Total: 2}, res)
	require.Equal(t, 1, e.counter.sent)
	require.Equal(t, 1, e.counter.failed)

	_, err = e.svc.Broadcast(ctx, "op", "   ")
	require.ErrorIs(t, err, admission.ErrEmptyMessage)

	action := audit.ActionBroadcast
	entries, err := e.audits.List(ctx, audit.ListOptions{Action: &action})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "sent=1 failed=1 total=2", entries[0].Detail)
}
