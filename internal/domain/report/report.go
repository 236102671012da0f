// Package report is the read-only view over the queue and member directory
// used by reporting and the operator surface.
package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"text/tabwriter"

	"github.com/rpggio/admission/internal/domain/member"
	"github.com/rpggio/admission/internal/domain/queue"
)

// QueueReader is the read side of the admission queue. *queue.Service
// satisfies it.
type QueueReader interface {
	Snapshot(ctx context.Context) (queue.Snapshot, error)
	FullQueue(ctx context.Context, limit int) ([]queue.Entry, error)
	QueueByTier(ctx context.Context, tier int) ([]queue.Entry, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

// MemberReader resolves members.
type MemberReader interface {
	Get(ctx context.Context, id string) (*member.Member, error)
	List(ctx context.Context) ([]member.Member, error)
}

// MemberStatus is a member with its queue state. Ticket is nil when the
// member is not queued.
type MemberStatus struct {
	Member *member.Member `json:"member"`
	Ticket *queue.Ticket  `json:"ticket,omitempty"`
	Rank   int            `json:"rank,omitempty"`
}

// Queued reports whether the member holds an active ticket.
func (s MemberStatus) Queued() bool { return s.Ticket != nil }

// TierCount is one bar of the tier histogram.
type TierCount struct {
	Tier   int `json:"tier"`
	Active int `json:"active"`
}

// Summary aggregates queue and member counts.
type Summary struct {
	Active        int         `json:"active"`
	Served        int         `json:"served"`
	Removed       int         `json:"removed"`
	Tiers         []TierCount `json:"tiers"`
	Members       int         `json:"members"`
	ActiveMembers int         `json:"active_members"`
}

// Service answers read-only questions about the queue.
type Service struct {
	queue   QueueReader
	members MemberReader
	logger  *slog.Logger
}

// NewService creates a report service.
func NewService(q QueueReader, members MemberReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{queue: q, members: members, logger: logger}
}

// Position returns the member and, if queued, its ticket and global rank.
func (s *Service) Position(ctx context.Context, memberID string) (*MemberStatus, error) {
	m, err := s.members.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	snap, err := s.queue.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	status := &MemberStatus{Member: m}
	for _, t := range snap.Active {
		if t.MemberID == memberID {
			status.Ticket = &t
			status.Rank = queue.Rank(snap.Active, t)
			break
		}
	}
	return status, nil
}

// Listing returns the ordered queue. limit <= 0 returns everything.
func (s *Service) Listing(ctx context.Context, limit int) ([]queue.Entry, error) {
	return s.queue.FullQueue(ctx, limit)
}

// TierListing returns one tier of the queue with global ranks.
func (s *Service) TierListing(ctx context.Context, tier int) ([]queue.Entry, error) {
	return s.queue.QueueByTier(ctx, tier)
}

// Summary returns totals and the tier histogram in tier order.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return nil, err
	}
	members, err := s.members.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}

	sum := &Summary{
		Active:  stats.Active,
		Served:  stats.Served,
		Removed: stats.Removed,
		Tiers:   make([]TierCount, 0, len(stats.ByTier)),
		Members: len(members),
	}
	for tier, n := range stats.ByTier {
		sum.Tiers = append(sum.Tiers, TierCount{Tier: tier, Active: n})
	}
	sort.Slice(sum.Tiers, func(i, j int) bool { return sum.Tiers[i].Tier < sum.Tiers[j].Tier })
	for _, m := range members {
		if m.Active {
			sum.ActiveMembers++
		}
	}
	return sum, nil
}

// WriteListing renders entries as an aligned plain-text table.
func WriteListing(w io.Writer, entries []queue.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tTIER\tPOS\tNAME\tREASON\tEXTERNAL ID")
	for _, e := range entries {
		name, reason, external := "-", "-", "-"
		if e.Member != nil {
			name, reason, external = e.Member.DisplayName, e.Member.Reason, e.Member.ExternalID
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\n",
			e.Rank, e.Ticket.Tier, e.Ticket.Position, name, reason, external)
	}
	return tw.Flush()
}
