package audit

import "time"

// Action tags an administrative mutation.
type Action string

const (
	ActionEnqueue      Action = "enqueue"
	ActionReprioritize Action = "reprioritize"
	ActionMovePosition Action = "move_position"
	ActionMarkServed   Action = "mark_served"
	ActionRemove       Action = "remove"
	ActionSetActive    Action = "set_active"
	ActionChangeReason Action = "change_reason"
	ActionBroadcast    Action = "broadcast"
)

// Entry is an immutable audit record.
type Entry struct {
	ID         int64     `json:"id"`
	OperatorID string    `json:"operator_id"`
	Action     Action    `json:"action"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
