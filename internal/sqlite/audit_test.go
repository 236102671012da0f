package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/admission/internal/domain/audit"
	"github.com/stretchr/testify/require"
)

func TestAuditRepository_AppendList(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	repo := NewAuditRepository(db)
	entry1 := &audit.Entry{
		OperatorID: "op1",
		Action:     audit.ActionMarkServed,
		Detail:     "member=m1",
	}
	entry2 := &audit.Entry{
		OperatorID: "op1",
		Action:     audit.ActionRemove,
		Detail:     "member=m2",
	}

	require.NoError(t, repo.Append(ctx, entry1))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, repo.Append(ctx, entry2))
	require.NotZero(t, entry1.ID)
	require.False(t, entry1.CreatedAt.IsZero())

	entries, err := repo.List(ctx, audit.ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, entry2.Action, entries[0].Action)
	require.Equal(t, entry1.Action, entries[1].Action)
}

func TestAuditRepository_Filters(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewAuditRepository(db)

	require.NoError(t, repo.Append(ctx, &audit.Entry{OperatorID: "op1", Action: audit.ActionEnqueue}))
	require.NoError(t, repo.Append(ctx, &audit.Entry{OperatorID: "op2", Action: audit.ActionRemove}))
	require.NoError(t, repo.Append(ctx, &audit.Entry{OperatorID: "op2", Action: audit.ActionEnqueue}))

	entries, err := repo.List(ctx, audit.ListOptions{OperatorID: "op2"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	action := audit.ActionEnqueue
	entries, err = repo.List(ctx, audit.ListOptions{Action: &action})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, err = repo.List(ctx, audit.ListOptions{OperatorID: "op2", Action: &action})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = repo.List(ctx, audit.ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = repo.List(ctx, audit.ListOptions{Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, entries, 0)

	entries, err = repo.List(ctx, audit.ListOptions{Since: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	require.Len(t, entries, 3)
}
