package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/admission/internal/domain/queue"
	"github.com/rpggio/admission/internal/repository"
	"github.com/stretchr/testify/require"
)

func newTicket(memberID string, tier, position int) *queue.Ticket {
	now := time.Now()
	return &queue.Ticket{
		MemberID:  memberID,
		Tier:      tier,
		Position:  position,
		Status:    queue.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestTicketRepository_ApplyInsertAssignsID(t *testing.T) {
	db := NewTestDB(t)
	repo := NewTicketRepository(db)
	ctx := context.Background()
	insertMember(t, db, "m1", "ext-1", 1)
	insertMember(t, db, "m2", "ext-2", 1)

	first := newTicket("m1", 1, 1)
	require.NoError(t, repo.Apply(ctx, queue.ChangeSet{Insert: first}))
	second := newTicket("m2", 1, 2)
	require.NoError(t, repo.Apply(ctx, queue.ChangeSet{Insert: second}))

	require.NotZero(t, first.ID)
	require.Greater(t, second.ID, first.ID)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "m1", active[0].MemberID)
	require.Equal(t, "m2", active[1].MemberID)
}

func TestTicketRepository_ApplyIsAtomic(t *testing.T) {
	db := NewTestDB(t)
	repo := NewTicketRepository(db)
	ctx := context.Background()
	insertMember(t, db, "m1", "ext-1", 1)
	insertMember(t, db, "m2", "ext-2", 1)

	a := newTicket("m1", 1, 1)
	require.NoError(t, repo.Apply(ctx, queue.ChangeSet{Insert: a}))

	// The update succeeds but the insert violates the one-active rule, so
	// neither write may persist.
	moved := *a
	moved.Position = 5
	err := repo.Apply(ctx, queue.ChangeSet{
		Updates: []queue.Ticket{moved},
		Insert:  newTicket("m1", 1, 2),
	})
	require.ErrorIs(t, err, repository.ErrConflict)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, 1, active[0].Position)
}

func TestTicketRepository_ApplyUnknownTicket(t *testing.T) {
	db := NewTestDB(t)
	repo := NewTicketRepository(db)
	ctx := context.Background()

	err := repo.Apply(ctx, queue.ChangeSet{Updates: []queue.Ticket{{ID: 42, Tier: 1, Position: 1, Status: queue.StatusActive}}})
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTicketRepository_ApplyUnknownMember(t *testing.T) {
	db := NewTestDB(t)
	repo := NewTicketRepository(db)
	ctx := context.Background()

	err := repo.Apply(ctx, queue.ChangeSet{Insert: newTicket("ghost", 1, 1)})
	require.ErrorIs(t, err, repository.ErrForeignKeyViolation)
}

func TestTicketRepository_SnapshotAndHistory(t *testing.T) {
	db := NewTestDB(t)
	repo := NewTicketRepository(db)
	ctx := context.Background()
	insertMember(t, db, "m1", "ext-1", 1)
	insertMember(t, db, "m2", "ext-2", 2)

	t1 := newTicket("m1", 1, 1)
	require.NoError(t, repo.Apply(ctx, queue.ChangeSet{Insert: t1}))
	served := *t1
	served.Status = queue.StatusServed
	require.NoError(t, repo.Apply(ctx, queue.ChangeSet{Updates: []queue.Ticket{served}}))

	require.NoError(t, repo.Apply(ctx, queue.ChangeSet{Insert: newTicket("m1", 1, 1)}))
	require.NoError(t, repo.Apply(ctx, queue.ChangeSet{Insert: newTicket("m2", 2, 1)}))

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Active, 2)
	require.Equal(t, 1, snap.Active[0].Tier)
	require.Equal(t, 2, snap.Active[1].Tier)
	require.Equal(t, 2, snap.Counts[queue.StatusActive])
	require.Equal(t, 1, snap.Counts[queue.StatusServed])
	require.Equal(t, 0, snap.Counts[queue.StatusRemoved])

	history, err := repo.ListByMember(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, queue.StatusServed, history[0].Status)
	require.Equal(t, queue.StatusActive, history[1].Status)
}
