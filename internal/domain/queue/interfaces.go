package queue

import (
	"context"
	"time"

	"github.com/rpggio/admission/internal/domain/audit"
	"github.com/rpggio/admission/internal/domain/member"
)

// Repository provides persistence for tickets. Apply must commit the whole
// change set in one transaction, and Snapshot must read in one transaction.
type Repository interface {
	ListActive(ctx context.Context) ([]Ticket, error)
	Snapshot(ctx context.Context) (Snapshot, error)
	ListByMember(ctx context.Context, memberID string) ([]Ticket, error)
	Apply(ctx context.Context, changes ChangeSet) error
}

// MemberDirectory resolves ticket owners.
type MemberDirectory interface {
	Get(ctx context.Context, id string) (*member.Member, error)
	GetMany(ctx context.Context, ids []string) (map[string]member.Member, error)
}

// TierPolicy validates tiers against the configured range.
type TierPolicy interface {
	Validate(tier int) error
}

// AuditRecorder appends operator audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, operatorID string, action audit.Action, detail string) (*audit.Entry, error)
}

// Locker serializes mutations across processes sharing one store. The
// returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context) (func(), error)
}

// Observer receives operation outcomes and the active ticket count per tier
// after each committed mutation.
type Observer interface {
	ObserveOperation(op string, elapsed time.Duration, err error)
	ObserveActive(byTier map[int]int)
}
