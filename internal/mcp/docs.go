package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `admission manages a tiered waiting list for a capacity-gated community.

Core concepts:
- Member: an applicant identified by external_id, with a declared reason that maps to a tier.
- Tier: lower numbers are served first. Unknown reasons get the fallback tier (see list_reasons).
- Ticket: a member's place in the queue. At most one active ticket per member; served and removed are final.
- Position: 1-based and gap-free within a tier. Rank: 1-based across the whole queue (tier, then position).

Typical flows:
1) Onboarding: join_queue(external_id, display_name, reason). Repeating it is safe and returns the current rank.
2) Look: queue_position, list_queue (format=text for a table), queue_stats.
3) Act: promote / demote / reprioritize / move_position / mark_served / remove_from_queue.
   - Tier changes always put the member at the back of the new tier.
   - mark_served and remove_from_queue return closed=false when the member was not queued.
4) Review: audit_log lists operator actions newest first.

Errors carry a stable code (NOT_QUEUED, ALREADY_QUEUED, INVALID_TIER, CONTENTION, ...).
CONTENTION is transient: re-check with queue_position before retrying.

Docs:
- admission://docs/ordering
- admission://docs/operators
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "admission://docs/ordering",
		Name:        "docs_ordering",
		Title:       "Queue ordering rules",
		Description: "How tiers, positions, and ranks relate, and what each mutation does to them.",
		Content: `# Queue ordering

Every active ticket has a tier and a position. Positions in a tier are always exactly 1..k.

Rank = (active tickets in lower-numbered tiers) + (tickets ahead in the same tier) + 1.
Ranks are computed on read and never stored.

| Operation        | Effect |
|------------------|--------|
| join_queue       | Appends at the tail of the member's tier. |
| reprioritize     | Leaves the old tier (gap closed) and appends to the tail of the new tier. Same tier means back of the line. |
| promote / demote | reprioritize to tier - 1 / tier + 1 within the configured range. |
| move_position    | Sets the position, then renumbers. Ties keep the previous order, then ticket id, so use 0 to reach the head. |
| mark_served      | Closes the ticket as served; the tier closes the gap. |
| remove_from_queue| Closes the ticket as removed; the tier closes the gap. |

Enqueuing never improves anyone else's rank: tickets in the same or higher-priority tiers keep
their rank and lower-priority tiers move back by one.
`,
	},
	{
		URI:         "admission://docs/operators",
		Name:        "docs_operators",
		Title:       "Operator identity and audit",
		Description: "How operator identity is resolved and which actions are audited.",
		Content: `# Operators

Over HTTP each request carries "Authorization: Bearer <key>". The key resolves to an operator ID.
Over stdio every call is attributed to the configured console operator.

Each successful operator mutation writes exactly one audit entry after it commits. No-ops
(serving a member who is not queued) write nothing. Audit write failures are logged and never
undo the mutation.

Audited actions: enqueue, reprioritize, move_position, mark_served, remove, set_active,
change_reason, broadcast.

Member notifications are best effort: failures are logged and never undo the mutation.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
