package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rpggio/admission/internal/domain/audit"
	"github.com/rpggio/admission/internal/repository"
)

// Options tunes a queue Service. The zero value is usable.
type Options struct {
	// MaxActive caps the number of active tickets. Zero means no cap.
	MaxActive int
	// Locker additionally serializes mutations across processes.
	Locker Locker
	// Observer receives metrics callbacks.
	Observer Observer
}

// Service owns the ordered set of tickets. Every mutation runs inside one
// critical section and commits its writes in a single Apply, so positions
// are dense and unique whenever a call returns. Reads share a read lock and
// see a consistent snapshot.
type Service struct {
	repo     Repository
	members  MemberDirectory
	tiers    TierPolicy
	audits   AuditRecorder
	locker   Locker
	observer Observer
	max      int
	logger   *slog.Logger
	now      func() time.Time

	mu sync.RWMutex
}

// NewService creates a new queue service. audits may be nil, in which case
// operator actions are not recorded.
func NewService(repo Repository, members MemberDirectory, tiers TierPolicy, audits AuditRecorder, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		members:  members,
		tiers:    tiers,
		audits:   audits,
		locker:   opts.Locker,
		observer: opts.Observer,
		max:      opts.MaxActive,
		logger:   logger,
		now:      time.Now,
	}
}

// plan is the outcome of a mutation: the writes to commit and the active set
// once they are committed.
type plan struct {
	changes ChangeSet
	active  []Ticket
}

// Enqueue appends a new active ticket for memberID at the tail of tier.
func (s *Service) Enqueue(ctx context.Context, operatorID, memberID string, tier int) (*Ticket, error) {
	if err := s.tiers.Validate(tier); err != nil {
		return nil, err
	}
	if _, err := s.members.Get(ctx, memberID); err != nil {
		return nil, err
	}

	var ticket *Ticket
	err := s.mutate(ctx, string(audit.ActionEnqueue), func(active []Ticket) (*plan, error) {
		if indexOfMember(active, memberID) >= 0 {
			return nil, ErrAlreadyQueued
		}
		if s.max > 0 && len(active) >= s.max {
			return nil, ErrQueueFull
		}
		now := s.now()
		ticket = &Ticket{
			MemberID:  memberID,
			Tier:      tier,
			Position:  tailPosition(active, tier, 0),
			Status:    StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		next := append(clone(active), *ticket)
		return &plan{changes: ChangeSet{Insert: ticket}, active: next}, nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, operatorID, audit.ActionEnqueue,
		fmt.Sprintf("member=%s tier=%d position=%d", memberID, ticket.Tier, ticket.Position))
	return ticket, nil
}

// Reprioritize moves the member's active ticket to the tail of newTier and
// closes the gap it leaves behind.
func (s *Service) Reprioritize(ctx context.Context, operatorID, memberID string, newTier int) (*Ticket, error) {
	if err := s.tiers.Validate(newTier); err != nil {
		return nil, err
	}

	var result Ticket
	var oldTier int
	err := s.mutate(ctx, string(audit.ActionReprioritize), func(active []Ticket) (*plan, error) {
		idx := indexOfMember(active, memberID)
		if idx < 0 {
			return nil, ErrNotQueued
		}
		now := s.now()
		next := clone(active)
		oldTier = next[idx].Tier
		next[idx].Position = tailPosition(next, newTier, next[idx].ID)
		next[idx].Tier = newTier
		next[idx].UpdatedAt = now
		renumber(next, now, oldTier, newTier)
		result = next[idx]
		return &plan{changes: ChangeSet{Updates: changed(active, next)}, active: next}, nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, operatorID, audit.ActionReprioritize,
		fmt.Sprintf("member=%s tier=%d->%d position=%d", memberID, oldTier, result.Tier, result.Position))
	return &result, nil
}

// MoveToPosition sets the member's active ticket to position target within
// its tier and renumbers the tier. Ties keep the previous order, then ticket
// id. Out of range targets end up at the head or tail of the tier.
func (s *Service) MoveToPosition(ctx context.Context, operatorID, memberID string, target int) (*Ticket, error) {
	var result Ticket
	err := s.mutate(ctx, string(audit.ActionMovePosition), func(active []Ticket) (*plan, error) {
		idx := indexOfMember(active, memberID)
		if idx < 0 {
			return nil, ErrNotQueued
		}
		next := clone(active)
		placeAt(next, idx, target, s.now())
		result = next[idx]
		return &plan{changes: ChangeSet{Updates: changed(active, next)}, active: next}, nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, operatorID, audit.ActionMovePosition,
		fmt.Sprintf("member=%s tier=%d requested=%d position=%d", memberID, result.Tier, target, result.Position))
	return &result, nil
}

// MarkServed closes the member's active ticket as served. It returns false
// without side effects when the member is not queued.
func (s *Service) MarkServed(ctx context.Context, operatorID, memberID string) (bool, error) {
	return s.close(ctx, operatorID, memberID, StatusServed, audit.ActionMarkServed)
}

// Remove closes the member's active ticket as removed. It returns false
// without side effects when the member is not queued.
func (s *Service) Remove(ctx context.Context, operatorID, memberID string) (bool, error) {
	return s.close(ctx, operatorID, memberID, StatusRemoved, audit.ActionRemove)
}

func (s *Service) close(ctx context.Context, operatorID, memberID string, status Status, action audit.Action) (bool, error) {
	var closed *Ticket
	err := s.mutate(ctx, string(action), func(active []Ticket) (*plan, error) {
		idx := indexOfMember(active, memberID)
		if idx < 0 {
			return nil, nil
		}
		now := s.now()
		next := clone(active)
		t := next[idx]
		t.Status = status
		t.UpdatedAt = now
		closed = &t

		next = append(next[:idx], next[idx+1:]...)
		renumber(next, now, t.Tier)
		updates := append([]Ticket{t}, changed(active, next)...)
		return &plan{changes: ChangeSet{Updates: updates}, active: next}, nil
	})
	if err != nil {
		return false, err
	}
	if closed == nil {
		return false, nil
	}

	s.record(ctx, operatorID, action,
		fmt.Sprintf("member=%s ticket=%d tier=%d", memberID, closed.ID, closed.Tier))
	return true, nil
}

// mutate runs fn against the current active set inside the critical section
// and commits the resulting plan. A nil plan is a no-op.
func (s *Service) mutate(ctx context.Context, op string, fn func(active []Ticket) (*plan, error)) (err error) {
	start := time.Now()
	defer func() {
		if s.observer != nil {
			s.observer.ObserveOperation(op, time.Since(start), err)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locker != nil {
		unlock, lockErr := s.locker.Lock(ctx)
		if lockErr != nil {
			s.logger.Warn("queue lock not acquired", "op", op, "error", lockErr)
			return fmt.Errorf("%w: %v", ErrContention, lockErr)
		}
		defer unlock()
	}

	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("listing active tickets: %w", err)
	}

	p, err := fn(active)
	if err != nil {
		return err
	}
	if p == nil || p.changes.Empty() {
		return nil
	}

	if err := s.repo.Apply(ctx, p.changes); err != nil {
		if p.changes.Insert != nil && errors.Is(err, repository.ErrConflict) {
			return ErrAlreadyQueued
		}
		if errors.Is(err, repository.ErrForeignKeyViolation) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("applying %s: %w", op, err)
	}

	s.logger.Debug("queue mutation committed", "op", op,
		"inserted", p.changes.Insert != nil, "updated", len(p.changes.Updates))
	if s.observer != nil {
		s.observer.ObserveActive(CountByTier(p.active))
	}
	return nil
}

func (s *Service) record(ctx context.Context, operatorID string, action audit.Action, detail string) {
	if operatorID == "" || s.audits == nil {
		return
	}
	if _, err := s.audits.Record(ctx, operatorID, action, detail); err != nil {
		s.logger.Warn("audit record failed", "operator", operatorID, "action", action, "error", err)
	}
}

// Snapshot returns a consistent view of the queue.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading queue snapshot: %w", err)
	}
	snap.Active = Order(snap.Active)
	return snap, nil
}

// Active returns the member's active ticket.
func (s *Service) Active(ctx context.Context, memberID string) (*Ticket, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	idx := indexOfMember(snap.Active, memberID)
	if idx < 0 {
		return nil, ErrNotQueued
	}
	t := snap.Active[idx]
	return &t, nil
}

// RankOf returns the member's global 1-based rank.
func (s *Service) RankOf(ctx context.Context, memberID string) (int, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	idx := indexOfMember(snap.Active, memberID)
	if idx < 0 {
		return 0, ErrNotQueued
	}
	return Rank(snap.Active, snap.Active[idx]), nil
}

// FullQueue returns active tickets ordered by tier then position, joined with
// their members. limit <= 0 returns everything.
func (s *Service) FullQueue(ctx context.Context, limit int) ([]Entry, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	entries := Entries(snap.Active)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return s.join(ctx, entries)
}

// QueueByTier returns the active tickets of one tier ordered by position.
func (s *Service) QueueByTier(ctx context.Context, tier int) ([]Entry, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, e := range Entries(snap.Active) {
		if e.Ticket.Tier == tier {
			entries = append(entries, e)
		}
	}
	return s.join(ctx, entries)
}

// Stats returns ticket counts.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return Stats{}, err
	}
	return StatsOf(snap), nil
}

// History returns every ticket the member has held, oldest first.
func (s *Service) History(ctx context.Context, memberID string) ([]Ticket, error) {
	tickets, err := s.repo.ListByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("listing member tickets: %w", err)
	}
	return tickets, nil
}

func (s *Service) join(ctx context.Context, entries []Entry) ([]Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Ticket.MemberID)
	}
	members, err := s.members.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading queue members: %w", err)
	}
	for i := range entries {
		m, ok := members[entries[i].Ticket.MemberID]
		if !ok {
			s.logger.Warn("queued member missing from directory", "member_id", entries[i].Ticket.MemberID)
			continue
		}
		entries[i].Member = &m
	}
	return entries, nil
}

// Entries orders active tickets and attaches global ranks.
func Entries(active []Ticket) []Entry {
	ordered := Order(active)
	entries := make([]Entry, 0, len(ordered))
	for i, t := range ordered {
		entries = append(entries, Entry{Ticket: t, Rank: i + 1})
	}
	return entries
}

// StatsOf aggregates a snapshot.
func StatsOf(snap Snapshot) Stats {
	return Stats{
		Active:  len(snap.Active),
		Served:  snap.Counts[StatusServed],
		Removed: snap.Counts[StatusRemoved],
		ByTier:  CountByTier(snap.Active),
	}
}

func clone(tickets []Ticket) []Ticket {
	return append([]Ticket(nil), tickets...)
}
