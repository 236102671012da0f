package mocks

import (
	"context"

	"github.com/rpggio/admission/internal/domain/audit"
	"github.com/rpggio/admission/internal/domain/member"
	"github.com/rpggio/admission/internal/domain/queue"
	"github.com/stretchr/testify/mock"
)

// MemberRepository is a mock for member.Repository.
type MemberRepository struct {
	mock.Mock
}

func (m *MemberRepository) Create(ctx context.Context, mem *member.Member) error {
	args := m.Called(ctx, mem)
	return args.Error(0)
}

func (m *MemberRepository) Get(ctx context.Context, id string) (*member.Member, error) {
	args := m.Called(ctx, id)
	if mem, ok := args.Get(0).(*member.Member); ok {
		return mem, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MemberRepository) GetByExternalID(ctx context.Context, externalID string) (*member.Member, error) {
	args := m.Called(ctx, externalID)
	if mem, ok := args.Get(0).(*member.Member); ok {
		return mem, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MemberRepository) GetMany(ctx context.Context, ids []string) (map[string]member.Member, error) {
	args := m.Called(ctx, ids)
	if found, ok := args.Get(0).(map[string]member.Member); ok {
		return found, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MemberRepository) List(ctx context.Context, opts member.ListOptions) ([]member.Member, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]member.Member); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MemberRepository) SetActive(ctx context.Context, id string, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

func (m *MemberRepository) UpdateReason(ctx context.Context, id, reason string, tier int) error {
	args := m.Called(ctx, id, reason, tier)
	return args.Error(0)
}

// TicketRepository is a mock for queue.Repository.
type TicketRepository struct {
	mock.Mock
}

func (m *TicketRepository) ListActive(ctx context.Context) ([]queue.Ticket, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]queue.Ticket); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TicketRepository) Snapshot(ctx context.Context) (queue.Snapshot, error) {
	args := m.Called(ctx)
	if snap, ok := args.Get(0).(queue.Snapshot); ok {
		return snap, args.Error(1)
	}
	return queue.Snapshot{}, args.Error(1)
}

func (m *TicketRepository) ListByMember(ctx context.Context, memberID string) ([]queue.Ticket, error) {
	args := m.Called(ctx, memberID)
	if list, ok := args.Get(0).([]queue.Ticket); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TicketRepository) Apply(ctx context.Context, changes queue.ChangeSet) error {
	args := m.Called(ctx, changes)
	return args.Error(0)
}

// AuditRepository is a mock for audit.Repository.
type AuditRepository struct {
	mock.Mock
}

func (m *AuditRepository) Append(ctx context.Context, entry *audit.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *AuditRepository) List(ctx context.Context, opts audit.ListOptions) ([]audit.Entry, error) {
	args := m.Called(ctx, opts)
	if list, ok := args.Get(0).([]audit.Entry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}
