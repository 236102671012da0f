// Package admission ties registration, the queue, and notifications
// together into the onboarding and operator workflows.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rpggio/admission/internal/domain/audit"
	"github.com/rpggio/admission/internal/domain/member"
	"github.com/rpggio/admission/internal/domain/queue"
	"github.com/rpggio/admission/internal/notify"
)

// Service runs admission workflows.
type Service struct {
	members  Members
	queue    Queue
	audits   Auditor
	notifier Notifier
	observer BroadcastObserver
	logger   *slog.Logger
}

// NewService creates an admission service. observer may be nil.
func NewService(members Members, q Queue, audits Auditor, notifier Notifier, observer BroadcastObserver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		members:  members,
		queue:    q,
		audits:   audits,
		notifier: notifier,
		observer: observer,
		logger:   logger,
	}
}

// JoinRequest is an onboarding request.
type JoinRequest struct {
	ExternalID  string
	DisplayName string
	Reason      string
}

// JoinResult reports the member's place after joining.
type JoinResult struct {
	Member        *member.Member `json:"member"`
	Ticket        *queue.Ticket  `json:"ticket"`
	Rank          int            `json:"rank"`
	NewMember     bool           `json:"new_member"`
	AlreadyQueued bool           `json:"already_queued"`
}

// Placement is a member's ticket and rank after an operator mutation.
type Placement struct {
	MemberID string        `json:"member_id"`
	Ticket   *queue.Ticket `json:"ticket"`
	Rank     int           `json:"rank"`
}

// Join registers the applicant if needed and queues them at their tier.
// Repeating a join is safe: an existing member and active ticket are reused.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	res := &JoinResult{NewMember: true}

	m, err := s.members.Register(ctx, member.RegisterRequest{
		ExternalID:  req.ExternalID,
		DisplayName: req.DisplayName,
		Reason:      req.Reason,
	})
	if errors.Is(err, member.ErrDuplicateMember) {
		res.NewMember = false
		m, err = s.members.GetByExternalID(ctx, strings.TrimSpace(req.ExternalID))
	}
	if err != nil {
		return nil, err
	}
	res.Member = m
	if !m.Active {
		return nil, ErrMemberInactive
	}

	t, err := s.queue.Enqueue(ctx, "", m.ID, m.Tier)
	if errors.Is(err, queue.ErrAlreadyQueued) {
		res.AlreadyQueued = true
		t, err = s.queue.Active(ctx, m.ID)
	}
	if err != nil {
		return nil, err
	}
	res.Ticket = t

	rank, err := s.queue.RankOf(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	res.Rank = rank

	if !res.AlreadyQueued {
		s.notifier.Registered(ctx, recipient(m), rank)
	}
	s.logger.Info("member joined queue", "member_id", m.ID, "tier", t.Tier, "rank", rank,
		"new_member", res.NewMember, "already_queued", res.AlreadyQueued)
	return res, nil
}

// Reprioritize moves the member to the back of tier.
func (s *Service) Reprioritize(ctx context.Context, operatorID, memberID string, tier int) (*Placement, error) {
	t, err := s.queue.Reprioritize(ctx, operatorID, memberID, tier)
	if err != nil {
		return nil, err
	}
	return s.placed(ctx, memberID, t), nil
}

// Promote moves the member one tier up.
func (s *Service) Promote(ctx context.Context, operatorID, memberID string) (*Placement, error) {
	return s.shift(ctx, operatorID, memberID, -1)
}

// Demote moves the member one tier down.
func (s *Service) Demote(ctx context.Context, operatorID, memberID string) (*Placement, error) {
	return s.shift(ctx, operatorID, memberID, 1)
}

func (s *Service) shift(ctx context.Context, operatorID, memberID string, delta int) (*Placement, error) {
	current, err := s.queue.Active(ctx, memberID)
	if err != nil {
		return nil, err
	}
	tiers := s.members.Tiers()
	target := current.Tier + delta
	if target < tiers.Min() || target > tiers.Max() {
		return nil, fmt.Errorf("%w: tier %d", ErrTierLimit, current.Tier)
	}
	return s.Reprioritize(ctx, operatorID, memberID, target)
}

// Move places the member at position within its tier.
func (s *Service) Move(ctx context.Context, operatorID, memberID string, position int) (*Placement, error) {
	t, err := s.queue.MoveToPosition(ctx, operatorID, memberID, position)
	if err != nil {
		return nil, err
	}
	return s.placed(ctx, memberID, t), nil
}

// Serve marks the member admitted. It reports false when the member was not
// queued.
func (s *Service) Serve(ctx context.Context, operatorID, memberID string) (bool, error) {
	ok, err := s.queue.MarkServed(ctx, operatorID, memberID)
	if err != nil || !ok {
		return ok, err
	}
	if m, err := s.members.Get(ctx, memberID); err == nil {
		s.notifier.Served(ctx, recipient(m))
	}
	return true, nil
}

// Remove withdraws the member's ticket. It reports false when the member was
// not queued.
func (s *Service) Remove(ctx context.Context, operatorID, memberID string) (bool, error) {
	ok, err := s.queue.Remove(ctx, operatorID, memberID)
	if err != nil || !ok {
		return ok, err
	}
	if m, err := s.members.Get(ctx, memberID); err == nil {
		s.notifier.Removed(ctx, recipient(m))
	}
	return true, nil
}

// SetActive toggles the member's active flag. Queue state is unchanged.
func (s *Service) SetActive(ctx context.Context, operatorID, memberID string, active bool) (*member.Member, error) {
	m, err := s.members.SetActive(ctx, memberID, active)
	if err != nil {
		return nil, err
	}
	s.record(ctx, operatorID, audit.ActionSetActive, fmt.Sprintf("member=%s active=%t", memberID, active))
	return m, nil
}

// ChangeReason updates the member's declared reason. A queued member whose
// ticket is not in the reason's tier is requeued at the back of that tier.
func (s *Service) ChangeReason(ctx context.Context, operatorID, memberID, reason string) (*member.Member, *Placement, error) {
	before, err := s.members.Get(ctx, memberID)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.members.ChangeReason(ctx, memberID, reason)
	if err != nil {
		return nil, nil, err
	}
	s.record(ctx, operatorID, audit.ActionChangeReason,
		fmt.Sprintf("member=%s reason=%s tier=%d->%d", memberID, m.Reason, before.Tier, m.Tier))

	// Compare against the ticket, not the old member tier, so a retry after a
	// failed requeue still moves the ticket.
	current, err := s.queue.Active(ctx, memberID)
	if errors.Is(err, queue.ErrNotQueued) {
		return m, nil, nil
	}
	if err != nil {
		return m, nil, err
	}
	if current.Tier == m.Tier {
		return m, nil, nil
	}
	t, err := s.queue.Reprioritize(ctx, operatorID, memberID, m.Tier)
	if errors.Is(err, queue.ErrNotQueued) {
		return m, nil, nil
	}
	if err != nil {
		return m, nil, err
	}
	return m, s.placed(ctx, memberID, t), nil
}

// Broadcast sends text to every active member.
func (s *Service) Broadcast(ctx context.Context, operatorID, text string) (notify.BroadcastResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return notify.BroadcastResult{}, ErrEmptyMessage
	}
	members, err := s.members.ListActive(ctx)
	if err != nil {
		return notify.BroadcastResult{}, err
	}
	recipients := make([]notify.Recipient, 0, len(members))
	for i := range members {
		recipients = append(recipients, recipient(&members[i]))
	}

	res := s.notifier.Broadcast(ctx, recipients, text)
	if s.observer != nil {
		s.observer.ObserveBroadcast(res.Sent, res.Failed)
	}
	s.record(ctx, operatorID, audit.ActionBroadcast,
		fmt.Sprintf("sent=%d failed=%d total=%d", res.Sent, res.Failed, res.Total))
	return res, nil
}

func (s *Service) placed(ctx context.Context, memberID string, t *queue.Ticket) *Placement {
	p := &Placement{MemberID: memberID, Ticket: t}
	rank, err := s.queue.RankOf(ctx, memberID)
	if err != nil {
		s.logger.Warn("rank lookup after mutation failed", "member_id", memberID, "error", err)
		return p
	}
	p.Rank = rank
	if m, err := s.members.Get(ctx, memberID); err == nil {
		s.notifier.PositionChanged(ctx, recipient(m), rank)
	}
	return p
}

func (s *Service) record(ctx context.Context, operatorID string, action audit.Action, detail string) {
	if operatorID == "" {
		return
	}
	if _, err := s.audits.Record(ctx, operatorID, action, detail); err != nil {
		s.logger.Warn("audit record failed", "operator", operatorID, "action", action, "error", err)
	}
}

func recipient(m *member.Member) notify.Recipient {
	return notify.Recipient{MemberID: m.ID, ExternalID: m.ExternalID}
}
