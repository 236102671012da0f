// Package pubnub publishes member notifications to per-member PubNub
// channels.
package pubnub

import (
	"context"
	"fmt"

	pn "github.com/pubnub/go/v7"
	"github.com/rpggio/admission/internal/notify"
)

// Config holds PubNub credentials.
type Config struct {
	PublishKey    string
	SubscribeKey  string
	UserID        string
	ChannelPrefix string
}

type publisher interface {
	publish(ctx context.Context, channel string, payload map[string]any) error
}

// Notifier implements notify.Notifier over PubNub.
type Notifier struct {
	pub    publisher
	prefix string
}

// New connects a PubNub client.
func New(cfg Config) *Notifier {
	pnCfg := pn.NewConfigWithUserId(pn.UserId(cfg.UserID))
	pnCfg.PublishKey = cfg.PublishKey
	pnCfg.SubscribeKey = cfg.SubscribeKey
	return newNotifier(&client{pn: pn.NewPubNub(pnCfg)}, cfg.ChannelPrefix)
}

func newNotifier(pub publisher, prefix string) *Notifier {
	if prefix == "" {
		prefix = "member-"
	}
	return &Notifier{pub: pub, prefix: prefix}
}

// Channel returns the channel a member listens on.
func (n *Notifier) Channel(memberID string) string {
	return n.prefix + memberID
}

// Notify implements notify.Notifier.
func (n *Notifier) Notify(ctx context.Context, msg notify.Message) error {
	payload := map[string]any{
		"type":      "queue_status",
		"kind":      string(msg.Kind),
		"member_id": msg.MemberID,
		"text":      msg.Text,
	}
	if msg.Rank > 0 {
		payload["rank"] = msg.Rank
	}
	if err := n.pub.publish(ctx, n.Channel(msg.MemberID), payload); err != nil {
		return fmt.Errorf("publishing %s to %s: %w", msg.Kind, msg.MemberID, err)
	}
	return nil
}

type client struct {
	pn *pn.PubNub
}

func (c *client) publish(ctx context.Context, channel string, payload map[string]any) error {
	_, status, err := c.pn.PublishWithContext(ctx).
		Channel(channel).
		Message(payload).
		Execute()
	if err != nil {
		return err
	}
	if status.StatusCode >= 300 {
		return fmt.Errorf("publish status %d", status.StatusCode)
	}
	return nil
}
