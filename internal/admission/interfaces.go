package admission

import (
	"context"

	"github.com/rpggio/admission/internal/domain/audit"
	"github.com/rpggio/admission/internal/domain/member"
	"github.com/rpggio/admission/internal/domain/queue"
	"github.com/rpggio/admission/internal/notify"
)

// Members is the member directory used by the workflow.
type Members interface {
	Register(ctx context.Context, req member.RegisterRequest) (*member.Member, error)
	Get(ctx context.Context, id string) (*member.Member, error)
	GetByExternalID(ctx context.Context, externalID string) (*member.Member, error)
	ListActive(ctx context.Context) ([]member.Member, error)
	SetActive(ctx context.Context, id string, active bool) (*member.Member, error)
	ChangeReason(ctx context.Context, id, reason string) (*member.Member, error)
	Tiers() *member.TierTable
}

// Queue is the admission queue used by the workflow.
type Queue interface {
	Enqueue(ctx context.Context, operatorID, memberID string, tier int) (*queue.Ticket, error)
	Reprioritize(ctx context.Context, operatorID, memberID string, newTier int) (*queue.Ticket, error)
	MoveToPosition(ctx context.Context, operatorID, memberID string, target int) (*queue.Ticket, error)
	MarkServed(ctx context.Context, operatorID, memberID string) (bool, error)
	Remove(ctx context.Context, operatorID, memberID string) (bool, error)
	Active(ctx context.Context, memberID string) (*queue.Ticket, error)
	RankOf(ctx context.Context, memberID string) (int, error)
}

// Auditor records operator actions that do not go through the queue.
type Auditor interface {
	Record(ctx context.Context, operatorID string, action audit.Action, detail string) (*audit.Entry, error)
}

// Notifier delivers member notifications. *notify.Dispatcher satisfies it.
type Notifier interface {
	Registered(ctx context.Context, r notify.Recipient, rank int) bool
	PositionChanged(ctx context.Context, r notify.Recipient, rank int) bool
	Served(ctx context.Context, r notify.Recipient) bool
	Removed(ctx context.Context, r notify.Recipient) bool
	Broadcast(ctx context.Context, recipients []notify.Recipient, text string) notify.BroadcastResult
}

// BroadcastObserver counts broadcast outcomes.
type BroadcastObserver interface {
	ObserveBroadcast(sent, failed int)
}
