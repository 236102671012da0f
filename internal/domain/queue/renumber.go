package queue

import (
	"sort"
	"time"
)

// renumber reassigns positions 1..k within each listed tier, ordering by
// current position and then ticket id. Only tickets whose position changes
// are touched. tickets must hold active tickets only.
func renumber(tickets []Ticket, now time.Time, tiers ...int) {
	seen := make(map[int]bool, len(tiers))
	for _, tier := range tiers {
		if seen[tier] {
			continue
		}
		seen[tier] = true

		idx := tierIndexes(tickets, tier)
		sort.SliceStable(idx, func(a, b int) bool {
			ta, tb := tickets[idx[a]], tickets[idx[b]]
			if ta.Position != tb.Position {
				return ta.Position < tb.Position
			}
			return ta.ID < tb.ID
		})
		assign(tickets, idx, now)
	}
}

// placeAt sets tickets[moved].Position to target and renumbers its tier.
// Tickets sharing a position keep their previous order, then ticket id, so
// a ticket moved onto an occupied slot lands behind the ticket that held it
// unless it came from further ahead. target is not bounds-checked: anything
// below 1 reaches the head and anything past the tail reaches the tail.
func placeAt(tickets []Ticket, moved, target int, now time.Time) {
	idx := tierIndexes(tickets, tickets[moved].Tier)
	previous := make(map[int]int, len(idx))
	for _, i := range idx {
		previous[i] = tickets[i].Position
	}
	tickets[moved].Position = target

	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if tickets[ia].Position != tickets[ib].Position {
			return tickets[ia].Position < tickets[ib].Position
		}
		if previous[ia] != previous[ib] {
			return previous[ia] < previous[ib]
		}
		return tickets[ia].ID < tickets[ib].ID
	})
	assign(tickets, idx, now)
	if tickets[moved].Position != previous[moved] {
		tickets[moved].UpdatedAt = now
	}
}

func assign(tickets []Ticket, order []int, now time.Time) {
	for pos, i := range order {
		if tickets[i].Position != pos+1 {
			tickets[i].Position = pos + 1
			tickets[i].UpdatedAt = now
		}
	}
}

func tierIndexes(tickets []Ticket, tier int) []int {
	var idx []int
	for i := range tickets {
		if tickets[i].Tier == tier {
			idx = append(idx, i)
		}
	}
	return idx
}

// tailPosition returns max+1 over the active positions of tier, ignoring the
// ticket with id skip.
func tailPosition(tickets []Ticket, tier int, skip int64) int {
	highest := 0
	for _, t := range tickets {
		if t.Tier == tier && t.ID != skip && t.Position > highest {
			highest = t.Position
		}
	}
	return highest + 1
}

// changed returns the tickets in after whose tier, position, or status differ
// from the same ticket in before.
func changed(before, after []Ticket) []Ticket {
	prev := make(map[int64]Ticket, len(before))
	for _, t := range before {
		prev[t.ID] = t
	}
	var out []Ticket
	for _, t := range after {
		p, ok := prev[t.ID]
		if !ok || p.Tier != t.Tier || p.Position != t.Position || p.Status != t.Status {
			out = append(out, t)
		}
	}
	return out
}

// Rank computes the global rank of t among active tickets: every active
// ticket in a lower tier, plus those ahead of it in its own tier, plus one.
func Rank(active []Ticket, t Ticket) int {
	ahead := 0
	for _, o := range active {
		if o.Tier < t.Tier || (o.Tier == t.Tier && o.Position < t.Position) {
			ahead++
		}
	}
	return ahead + 1
}

// Order sorts active tickets by tier, position, then id.
func Order(active []Ticket) []Ticket {
	out := append([]Ticket(nil), active...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CountByTier returns the number of active tickets per tier.
func CountByTier(active []Ticket) map[int]int {
	counts := make(map[int]int)
	for _, t := range active {
		counts[t.Tier]++
	}
	return counts
}

func indexOfMember(active []Ticket, memberID string) int {
	for i := range active {
		if active[i].MemberID == memberID {
			return i
		}
	}
	return -1
}
