package member

import "errors"

var (
	// ErrMemberNotFound indicates the member doesn't exist.
	ErrMemberNotFound = errors.New("member not found")
	// ErrDuplicateMember indicates the external id is already registered.
	ErrDuplicateMember = errors.New("member already registered")
	// ErrInvalidTier indicates a tier outside the configured range.
	ErrInvalidTier = errors.New("tier outside configured range")
	// ErrInvalidInput indicates invalid member input.
	ErrInvalidInput = errors.New("invalid member input")
)
