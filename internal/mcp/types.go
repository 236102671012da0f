package mcp

import (
	"time"

	"github.com/rpggio/admission/internal/admission"
	"github.com/rpggio/admission/internal/domain/audit"
	"github.com/rpggio/admission/internal/domain/member"
	"github.com/rpggio/admission/internal/domain/queue"
)

type JoinQueueParams struct {
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name"`
	Reason      string `json:"reason,omitempty"`
}

// MemberRef addresses a member by internal or external ID.
type MemberRef struct {
	MemberID   string `json:"member_id,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

type ListQueueParams struct {
	Limit  int    `json:"limit,omitempty"`
	Tier   *int   `json:"tier,omitempty"`
	Format string `json:"format,omitempty"`
}

type ReprioritizeParams struct {
	MemberRef
	Tier int `json:"tier"`
}

type MovePositionParams struct {
	MemberRef
	Position int `json:"position"`
}

type SetMemberActiveParams struct {
	MemberRef
	Active bool `json:"active"`
}

type ChangeReasonParams struct {
	MemberRef
	Reason string `json:"reason"`
}

type ListMembersParams struct {
	ActiveOnly bool `json:"active_only,omitempty"`
}

type AuditLogParams struct {
	OperatorID string    `json:"operator_id,omitempty"`
	Action     string    `json:"action,omitempty"`
	Since      time.Time `json:"since,omitempty"`
	Until      time.Time `json:"until,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	Offset     int       `json:"offset,omitempty"`
}

type BroadcastParams struct {
	Message string `json:"message"`
}

type QueueListingResponse struct {
	Entries []queue.Entry `json:"entries"`
	Text    string        `json:"text,omitempty"`
}

type ClosedResponse struct {
	MemberID string `json:"member_id"`
	Closed   bool   `json:"closed"`
}

type ReasonsResponse struct {
	Reasons      []member.Reason `json:"reasons"`
	FallbackTier int             `json:"fallback_tier"`
	MinTier      int             `json:"min_tier"`
	MaxTier      int             `json:"max_tier"`
}

type MembersResponse struct {
	Members []member.Member `json:"members"`
}

type AuditLogResponse struct {
	Entries []audit.Entry `json:"entries"`
}

type HistoryResponse struct {
	MemberID string         `json:"member_id"`
	Tickets  []queue.Ticket `json:"tickets"`
}

type ChangeReasonResponse struct {
	Member    *member.Member       `json:"member"`
	Requeued  bool                 `json:"requeued"`
	Placement *admission.Placement `json:"placement,omitempty"`
}
