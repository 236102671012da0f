package admission

import "errors"

var (
	// ErrMemberInactive is returned when a deactivated member tries to join.
	ErrMemberInactive = errors.New("member is inactive")

	// ErrTierLimit is returned when a promotion or demotion would leave the
	// configured tier range.
	ErrTierLimit = errors.New("tier already at limit")

	// ErrEmptyMessage is returned for a blank broadcast.
	ErrEmptyMessage = errors.New("broadcast message is empty")
)
