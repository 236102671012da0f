package pubnub

import (
	"context"
	"errors"
	"testing"

	"github.com/rpggio/admission/internal/notify"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) publish(ctx context.Context, channel string, payload map[string]any) error {
	args := m.Called(channel, payload)
	return args.Error(0)
}

func TestNotifier_PublishesToMemberChannel(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("publish", "member-m1", map[string]any{
		"type":      "queue_status",
		"kind":      "position_changed",
		"member_id": "m1",
		"text":      "moved",
		"rank":      4,
	}).Return(nil)

	n := newNotifier(pub, "")
	err := n.Notify(context.Background(), notify.Message{
		Kind: notify.KindPositionChanged, MemberID: "m1", Rank: 4, Text: "moved",
	})
	require.NoError(t, err)
	pub.AssertExpectations(t)
}

func TestNotifier_OmitsZeroRank(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("publish", "q-m2", mock.MatchedBy(func(p map[string]any) bool {
		_, has := p["rank"]
		return !has && p["kind"] == "served"
	})).Return(nil)

	n := newNotifier(pub, "q-")
	require.NoError(t, n.Notify(context.Background(), notify.Message{Kind: notify.KindServed, MemberID: "m2"}))
	pub.AssertExpectations(t)
}

func TestNotifier_WrapsPublishError(t *testing.T) {
	pub := &mockPublisher{}
	boom := errors.New("403 forbidden")
	pub.On("publish", mock.Anything, mock.Anything).Return(boom)

	n := newNotifier(pub, "")
	err := n.Notify(context.Background(), notify.Message{Kind: notify.KindRemoved, MemberID: "m3"})
	require.ErrorIs(t, err, boom)
}
