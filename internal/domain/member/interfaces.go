package member

import "context"

// Repository provides persistence for members.
type Repository interface {
	Create(ctx context.Context, m *Member) error
	Get(ctx context.Context, id string) (*Member, error)
	GetByExternalID(ctx context.Context, externalID string) (*Member, error)
	GetMany(ctx context.Context, ids []string) (map[string]Member, error)
	List(ctx context.Context, opts ListOptions) ([]Member, error)
	SetActive(ctx context.Context, id string, active bool) error
	UpdateReason(ctx context.Context, id, reason string, tier int) error
}
