package queue

import (
	"time"

	"github.com/rpggio/admission/internal/domain/member"
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusActive  Status = "active"
	StatusServed  Status = "served"
	StatusRemoved Status = "removed"
)

// Ticket is one admission request. Position is dense and 1-based among the
// active tickets of its tier.
type Ticket struct {
	ID        int64     `json:"id"`
	MemberID  string    `json:"member_id"`
	Tier      int       `json:"tier"`
	Position  int       `json:"position"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry is an active ticket joined with its member and global rank.
type Entry struct {
	Ticket Ticket         `json:"ticket"`
	Member *member.Member `json:"member,omitempty"`
	Rank   int            `json:"rank"`
}

// Stats aggregates ticket counts.
type Stats struct {
	Active  int         `json:"active"`
	Served  int         `json:"served"`
	Removed int         `json:"removed"`
	ByTier  map[int]int `json:"by_tier"`
}

// Snapshot is a consistent read of the queue: every active ticket ordered by
// tier then position, plus ticket counts per status.
type Snapshot struct {
	Active []Ticket
	Counts map[Status]int
}

// ChangeSet is the set of writes one mutation commits atomically.
type ChangeSet struct {
	Insert  *Ticket
	Updates []Ticket
}

// Empty reports whether the change set writes nothing.
func (c ChangeSet) Empty() bool {
	return c.Insert == nil && len(c.Updates) == 0
}
