package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rpggio/admission/internal/admission"
	"github.com/rpggio/admission/internal/domain/audit"
	"github.com/rpggio/admission/internal/domain/member"
	"github.com/rpggio/admission/internal/domain/queue"
	"github.com/rpggio/admission/internal/domain/report"
)

// Handler dispatches MCP commands.
type Handler struct {
	admission AdmissionService
	reports   ReportService
	members   MemberService
	audits    AuditService
	history   HistoryService
}

// NewHandler creates a new MCP handler.
func NewHandler(s Services) *Handler {
	return &Handler{
		admission: s.Admission,
		reports:   s.Reports,
		members:   s.Members,
		audits:    s.Audits,
		history:   s.History,
	}
}

// Handle dispatches MCP requests to domain services.
func (h *Handler) Handle(ctx context.Context, operatorID, method string, params json.RawMessage) (any, error) {
	switch method {
	case "join_queue":
		var req JoinQueueParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return h.admission.Join(ctx, admission.JoinRequest{
			ExternalID:  req.ExternalID,
			DisplayName: req.DisplayName,
			Reason:      req.Reason,
		})
	case "queue_position":
		var req MemberRef
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		id, err := h.resolveMember(ctx, req)
		if err != nil {
			return nil, err
		}
		return h.reports.Position(ctx, id)
	case "list_queue":
		var req ListQueueParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		var entries []queue.Entry
		var err error
		if req.Tier != nil {
			entries, err = h.reports.TierListing(ctx, *req.Tier)
		} else {
			entries, err = h.reports.Listing(ctx, req.Limit)
		}
		if err != nil {
			return nil, err
		}
		resp := QueueListingResponse{Entries: entries}
		if resp.Entries == nil {
			resp.Entries = []queue.Entry{}
		}
		if req.Format == "text" {
			var buf bytes.Buffer
			if err := report.WriteListing(&buf, entries); err != nil {
				return nil, err
			}
			resp.Text = buf.String()
		}
		return resp, nil
	case "queue_stats":
		return h.reports.Summary(ctx)
	case "reprioritize":
		var req ReprioritizeParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		id, err := h.resolveMember(ctx, req.MemberRef)
		if err != nil {
			return nil, err
		}
		return h.admission.Reprioritize(ctx, operatorID, id, req.Tier)
	case "promote", "demote":
		var req MemberRef
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		id, err := h.resolveMember(ctx, req)
		if err != nil {
			return nil, err
		}
		if method == "promote" {
			return h.admission.Promote(ctx, operatorID, id)
		}
		return h.admission.Demote(ctx, operatorID, id)
	case "move_position":
		var req MovePositionParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		id, err := h.resolveMember(ctx, req.MemberRef)
		if err != nil {
			return nil, err
		}
		return h.admission.Move(ctx, operatorID, id, req.Position)
	case "mark_served", "remove_from_queue":
		var req MemberRef
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		id, err := h.resolveMember(ctx, req)
		if err != nil {
			return nil, err
		}
		var closed bool
		if method == "mark_served" {
			closed, err = h.admission.Serve(ctx, operatorID, id)
		} else {
			closed, err = h.admission.Remove(ctx, operatorID, id)
		}
		if err != nil {
			return nil, err
		}
		return ClosedResponse{MemberID: id, Closed: closed}, nil
	case "set_member_active":
		var req SetMemberActiveParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		id, err := h.resolveMember(ctx, req.MemberRef)
		if err != nil {
			return nil, err
		}
		return h.admission.SetActive(ctx, operatorID, id, req.Active)
	case "change_reason":
		var req ChangeReasonParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		id, err := h.resolveMember(ctx, req.MemberRef)
		if err != nil {
			return nil, err
		}
		m, placement, err := h.admission.ChangeReason(ctx, operatorID, id, req.Reason)
		if err != nil {
			return nil, err
		}
		return ChangeReasonResponse{Member: m, Requeued: placement != nil, Placement: placement}, nil
	case "list_members":
		var req ListMembersParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		var members []member.Member
		var err error
		if req.ActiveOnly {
			members, err = h.members.ListActive(ctx)
		} else {
			members, err = h.members.List(ctx)
		}
		if err != nil {
			return nil, err
		}
		if members == nil {
			members = []member.Member{}
		}
		return MembersResponse{Members: members}, nil
	case "list_reasons":
		tiers := h.members.Tiers()
		return ReasonsResponse{
			Reasons:      tiers.Reasons(),
			FallbackTier: tiers.Fallback(),
			MinTier:      tiers.Min(),
			MaxTier:      tiers.Max(),
		}, nil
	case "audit_log":
		var req AuditLogParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		opts := audit.ListOptions{
			OperatorID: req.OperatorID,
			Since:      req.Since,
			Until:      req.Until,
			Limit:      req.Limit,
			Offset:     req.Offset,
		}
		if req.Action != "" {
			action := audit.Action(req.Action)
			opts.Action = &action
		}
		entries, err := h.audits.List(ctx, opts)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []audit.Entry{}
		}
		return AuditLogResponse{Entries: entries}, nil
	case "member_history":
		var req MemberRef
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		id, err := h.resolveMember(ctx, req)
		if err != nil {
			return nil, err
		}
		tickets, err := h.history.History(ctx, id)
		if err != nil {
			return nil, err
		}
		if tickets == nil {
			tickets = []queue.Ticket{}
		}
		return HistoryResponse{MemberID: id, Tickets: tickets}, nil
	case "broadcast":
		var req BroadcastParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return h.admission.Broadcast(ctx, operatorID, req.Message)
	default:
		return nil, fmt.Errorf("%w: unknown tool %q", errInvalidParams, method)
	}
}

// resolveMember turns a MemberRef into a member ID.
func (h *Handler) resolveMember(ctx context.Context, ref MemberRef) (string, error) {
	if id := strings.TrimSpace(ref.MemberID); id != "" {
		return id, nil
	}
	if ext := strings.TrimSpace(ref.ExternalID); ext != "" {
		m, err := h.members.GetByExternalID(ctx, ext)
		if err != nil {
			return "", err
		}
		return m.ID, nil
	}
	return "", fmt.Errorf("%w: member_id or external_id is required", errInvalidParams)
}

func decodeParams(params json.RawMessage, out any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return nil
}
