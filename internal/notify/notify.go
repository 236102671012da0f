// Package notify delivers best-effort messages to members.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Kind identifies what a message is about.
type Kind string

const (
	KindRegistered      Kind = "registered"
	KindPositionChanged Kind = "position_changed"
	KindServed          Kind = "served"
	KindRemoved         Kind = "removed"
	KindBroadcast       Kind = "broadcast"
)

// Message is one notification addressed to a member.
type Message struct {
	Kind       Kind   `json:"kind"`
	MemberID   string `json:"member_id"`
	ExternalID string `json:"external_id"`
	Rank       int    `json:"rank,omitempty"`
	Text       string `json:"text"`
}

// Notifier delivers a single message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Recipient is a broadcast target.
type Recipient struct {
	MemberID   string
	ExternalID string
}

// BroadcastResult counts broadcast deliveries.
type BroadcastResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// Options configures a Dispatcher.
type Options struct {
	Timeout     time.Duration
	Concurrency int
}

// Dispatcher wraps a Notifier with timeouts and logging. Delivery failures
// never surface as errors to the caller.
type Dispatcher struct {
	notifier Notifier
	opts     Options
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(n Notifier, opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Dispatcher{notifier: n, opts: opts, logger: logger}
}

// Send delivers msg and reports whether it went through.
func (d *Dispatcher) Send(ctx context.Context, msg Message) bool {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, msg); err != nil {
		d.logger.Warn("notification failed",
			"kind", msg.Kind, "member_id", msg.MemberID, "error", err)
		return false
	}
	return true
}

// Registered tells a newly queued member their rank.
func (d *Dispatcher) Registered(ctx context.Context, r Recipient, rank int) bool {
	return d.Send(ctx, Message{
		Kind: KindRegistered, MemberID: r.MemberID, ExternalID: r.ExternalID, Rank: rank,
		Text: fmt.Sprintf("Registration complete. Your place in the queue: %d.", rank),
	})
}

// PositionChanged tells a member their new rank.
func (d *Dispatcher) PositionChanged(ctx context.Context, r Recipient, rank int) bool {
	return d.Send(ctx, Message{
		Kind: KindPositionChanged, MemberID: r.MemberID, ExternalID: r.ExternalID, Rank: rank,
		Text: fmt.Sprintf("Your place in the queue changed: %d.", rank),
	})
}

// Served tells a member they have been admitted.
func (d *Dispatcher) Served(ctx context.Context, r Recipient) bool {
	return d.Send(ctx, Message{
		Kind: KindServed, MemberID: r.MemberID, ExternalID: r.ExternalID,
		Text: "You have been admitted. Welcome!",
	})
}

// Removed tells a member their ticket was withdrawn.
func (d *Dispatcher) Removed(ctx context.Context, r Recipient) bool {
	return d.Send(ctx, Message{
		Kind: KindRemoved, MemberID: r.MemberID, ExternalID: r.ExternalID,
		Text: "You have been removed from the queue.",
	})
}

// Broadcast sends text to every recipient with bounded concurrency.
func (d *Dispatcher) Broadcast(ctx context.Context, recipients []Recipient, text string) BroadcastResult {
	var sent atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for _, r := range recipients {
		g.Go(func() error {
			if d.Send(gctx, Message{Kind: KindBroadcast, MemberID: r.MemberID, ExternalID: r.ExternalID, Text: text}) {
				sent.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := BroadcastResult{Sent: int(sent.Load()), Total: len(recipients)}
	res.Failed = res.Total - res.Sent
	d.logger.Info("broadcast finished", "sent", res.Sent, "failed", res.Failed, "total", res.Total)
	return res
}

// LogNotifier writes messages to the log instead of delivering them.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info("notify", "kind", msg.Kind, "member_id", msg.MemberID,
		"external_id", msg.ExternalID, "rank", msg.Rank, "text", msg.Text)
	return nil
}
