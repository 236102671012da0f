package member

import "time"

// Member is one applicant known to the directory.
type Member struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"external_id"`
	DisplayName string    `json:"display_name"`
	Reason      string    `json:"reason"`
	Tier        int       `json:"tier"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Reason is a declared admission reason and the tier it grants.
type Reason struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	Tier  int    `json:"tier"`
}
