package queue

import (
	"errors"

	"github.com/rpggio/admission/internal/domain/member"
)

var (
	// ErrAlreadyQueued indicates the member already holds an active ticket.
	ErrAlreadyQueued = errors.New("member already queued")
	// ErrNotQueued indicates the member holds no active ticket.
	ErrNotQueued = errors.New("member not queued")
	// ErrQueueFull indicates the active ticket cap has been reached.
	ErrQueueFull = errors.New("queue is full")
	// ErrContention indicates the mutation lock could not be acquired in time.
	// It is transient and the call may be retried after re-reading state.
	ErrContention = errors.New("queue busy")

	ErrInvalidTier    = member.ErrInvalidTier
	ErrMemberNotFound = member.ErrMemberNotFound
)
