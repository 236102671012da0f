package audit

import "time"

// ListOptions provides filtering options for listing audit entries.
type ListOptions struct {
	OperatorID string
	Action     *Action
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}
