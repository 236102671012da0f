package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/admission/internal/admission"
	"github.com/rpggio/admission/internal/domain/audit"
	"github.com/rpggio/admission/internal/domain/member"
	"github.com/rpggio/admission/internal/domain/queue"
)

// errInvalidParams is returned when tool arguments fail to decode or validate.
var errInvalidParams = errors.New("invalid params")

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, member.ErrMemberNotFound):
		return &APIError{Code: "MEMBER_NOT_FOUND", Message: "member not found", RecoveryHint: "Check the member ID or use external_id"}
	case errors.Is(err, member.ErrDuplicateMember):
		return &APIError{Code: "DUPLICATE_MEMBER", Message: "external id already registered", RecoveryHint: "Look the member up instead of registering"}
	case errors.Is(err, queue.ErrAlreadyQueued):
		return &APIError{Code: "ALREADY_QUEUED", Message: "member already has an active ticket", RecoveryHint: "Use queue_position to see the current rank"}
	case errors.Is(err, queue.ErrNotQueued):
		return &APIError{Code: "NOT_QUEUED", Message: "member has no active ticket", RecoveryHint: "Call join_queue first"}
	case errors.Is(err, member.ErrInvalidTier):
		return &APIError{Code: "INVALID_TIER", Message: err.Error(), RecoveryHint: "Use list_reasons to see the tier range"}
	case errors.Is(err, queue.ErrQueueFull):
		return &APIError{Code: "QUEUE_FULL", Message: "queue is at capacity", RecoveryHint: "Serve or remove tickets first"}
	case errors.Is(err, queue.ErrContention):
		return &APIError{Code: "CONTENTION", Message: "queue is busy", RecoveryHint: "Re-check state and retry"}
	case errors.Is(err, admission.ErrTierLimit):
		return &APIError{Code: "TIER_LIMIT", Message: err.Error(), RecoveryHint: "Member is already at the edge of the tier range"}
	case errors.Is(err, admission.ErrMemberInactive):
		return &APIError{Code: "MEMBER_INACTIVE", Message: "member is deactivated", RecoveryHint: "Reactivate with set_member_active"}
	case errors.Is(err, admission.ErrEmptyMessage),
		errors.Is(err, member.ErrInvalidInput),
		errors.Is(err, audit.ErrInvalidInput),
		errors.Is(err, errInvalidParams):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error()}
	default:
		return nil
	}
}

// toAPIError maps err, falling back to an internal error.
func toAPIError(err error) *APIError {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return &APIError{Code: "INTERNAL_ERROR", Message: err.Error()}
}
