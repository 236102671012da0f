package member

import (
	"fmt"
	"sort"
)

// TierTable maps declared reason codes to priority tiers. Lower tiers are
// served first. A TierTable is immutable once built.
type TierTable struct {
	reasons  map[string]Reason
	order    []string
	fallback int
	min      int
	max      int
}

// NewTierTable builds a lookup table. Reason codes that are not in the table
// resolve to fallback, which is normally the lowest-priority tier.
func NewTierTable(reasons []Reason, fallback, min, max int) (*TierTable, error) {
	if min < 1 || max < min {
		return nil, fmt.Errorf("%w: range [%d,%d]", ErrInvalidTier, min, max)
	}
	t := &TierTable{
		reasons:  make(map[string]Reason, len(reasons)),
		fallback: fallback,
		min:      min,
		max:      max,
	}
	if err := t.Validate(fallback); err != nil {
		return nil, fmt.Errorf("fallback tier: %w", err)
	}
	for _, r := range reasons {
		if r.Code == "" {
			return nil, fmt.Errorf("%w: empty reason code", ErrInvalidInput)
		}
		if _, dup := t.reasons[r.Code]; dup {
			return nil, fmt.Errorf("%w: duplicate reason %q", ErrInvalidInput, r.Code)
		}
		if err := t.Validate(r.Tier); err != nil {
			return nil, fmt.Errorf("reason %q: %w", r.Code, err)
		}
		t.reasons[r.Code] = r
		t.order = append(t.order, r.Code)
	}
	return t, nil
}

// TierFor returns the tier for a reason code, or the fallback tier.
func (t *TierTable) TierFor(code string) int {
	if r, ok := t.reasons[code]; ok {
		return r.Tier
	}
	return t.fallback
}

// Reason returns the configured reason for code.
func (t *TierTable) Reason(code string) (Reason, bool) {
	r, ok := t.reasons[code]
	return r, ok
}

// Reasons returns the configured reasons ordered by tier, then code.
func (t *TierTable) Reasons() []Reason {
	out := make([]Reason, 0, len(t.order))
	for _, code := range t.order {
		out = append(out, t.reasons[code])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// Fallback returns the tier assigned to unrecognized reasons.
func (t *TierTable) Fallback() int { return t.fallback }

// Min returns the highest-priority tier.
func (t *TierTable) Min() int { return t.min }

// Max returns the lowest-priority tier.
func (t *TierTable) Max() int { return t.max }

// Validate reports whether tier is inside the configured range.
func (t *TierTable) Validate(tier int) error {
	if tier < t.min || tier > t.max {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrInvalidTier, tier, t.min, t.max)
	}
	return nil
}
