package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolDefinition describes one MCP tool.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

func memberRefProperties(extra map[string]any) map[string]any {
	props := map[string]any{
		"member_id": map[string]any{
			"type":        "string",
			"description": "Member ID (or use external_id)",
		},
		"external_id": map[string]any{
			"type":        "string",
			"description": "External identity the member registered with",
		},
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// buildToolCatalog returns all available MCP tools
func buildToolCatalog() []ToolDefinition {
	return []ToolDefinition{
		// Onboarding
		{
			Name:        "join_queue",
			Description: "Register an applicant (or reuse the existing registration) and queue them at the tier of their declared reason",
			InputSchema: objectSchema(map[string]any{
				"external_id": map[string]any{
					"type":        "string",
					"description": "Stable external identity of the applicant",
				},
				"display_name": map[string]any{
					"type":        "string",
					"description": "Name shown to operators",
				},
				"reason": map[string]any{
					"type":        "string",
					"description": "Declared reason code (see list_reasons); unknown codes get the fallback tier",
				},
			}, "external_id", "display_name"),
		},

		// Queries
		{
			Name:        "queue_position",
			Description: "Get a member's active ticket and global rank",
			InputSchema: objectSchema(memberRefProperties(nil)),
		},
		{
			Name:        "list_queue",
			Description: "List the queue in rank order, optionally for a single tier",
			InputSchema: objectSchema(map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of entries (ignored when tier is set)",
				},
				"tier": map[string]any{
					"type":        "integer",
					"description": "Only list this tier",
				},
				"format": map[string]any{
					"type":        "string",
					"description": "Set to text to include a plain-text table",
					"enum":        []string{"json", "text"},
				},
			}),
		},
		{
			Name:        "queue_stats",
			Description: "Get active/served/removed totals, the per-tier histogram, and member counts",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "member_history",
			Description: "List every ticket a member has held",
			InputSchema: objectSchema(memberRefProperties(nil)),
		},

		// Operator console
		{
			Name:        "reprioritize",
			Description: "Move a member to the back of another tier",
			InputSchema: objectSchema(memberRefProperties(map[string]any{
				"tier": map[string]any{
					"type":        "integer",
					"description": "Target tier",
				},
			}), "tier"),
		},
		{
			Name:        "promote",
			Description: "Move a member one tier up (to the back of that tier)",
			InputSchema: objectSchema(memberRefProperties(nil)),
		},
		{
			Name:        "demote",
			Description: "Move a member one tier down (to the back of that tier)",
			InputSchema: objectSchema(memberRefProperties(nil)),
		},
		{
			Name:        "move_position",
			Description: "Set a member's position within its tier and renumber; on a tie the ticket that was ahead before stays ahead",
			InputSchema: objectSchema(memberRefProperties(map[string]any{
				"position": map[string]any{
					"type":        "integer",
					"description": "Target position within the tier; 0 or less reaches the head, past the tail reaches the tail",
				},
			}), "position"),
		},
		{
			Name:        "mark_served",
			Description: "Admit a member; returns closed=false when they were not queued",
			InputSchema: objectSchema(memberRefProperties(nil)),
		},
		{
			Name:        "remove_from_queue",
			Description: "Withdraw a member's ticket; returns closed=false when they were not queued",
			InputSchema: objectSchema(memberRefProperties(nil)),
		},
		{
			Name:        "set_member_active",
			Description: "Activate or deactivate a member; queue state is unchanged",
			InputSchema: objectSchema(memberRefProperties(map[string]any{
				"active": map[string]any{
					"type":        "boolean",
					"description": "New active flag",
				},
			}), "active"),
		},
		{
			Name:        "change_reason",
			Description: "Change a member's declared reason; a queued member whose tier changes is requeued",
			InputSchema: objectSchema(memberRefProperties(map[string]any{
				"reason": map[string]any{
					"type":        "string",
					"description": "New reason code",
				},
			}), "reason"),
		},
		{
			Name:        "list_members",
			Description: "List registered members",
			InputSchema: objectSchema(map[string]any{
				"active_only": map[string]any{
					"type":        "boolean",
					"description": "Only include active members",
				},
			}),
		},
		{
			Name:        "list_reasons",
			Description: "List reason codes with their tiers, the fallback tier, and the tier range",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "audit_log",
			Description: "List operator audit entries, newest first",
			InputSchema: objectSchema(map[string]any{
				"operator_id": map[string]any{
					"type":        "string",
					"description": "Only entries by this operator",
				},
				"action": map[string]any{
					"type":        "string",
					"description": "Only entries with this action",
					"enum": []string{
						"enqueue", "reprioritize", "move_position", "mark_served",
						"remove", "set_active", "change_reason", "broadcast",
					},
				},
				"since": map[string]any{
					"type":        "string",
					"format":      "date-time",
					"description": "Only entries at or after this time",
				},
				"until": map[string]any{
					"type":        "string",
					"format":      "date-time",
					"description": "Only entries before this time",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results",
				},
				"offset": map[string]any{
					"type":        "integer",
					"description": "Offset for pagination",
				},
			}),
		},
		{
			Name:        "broadcast",
			Description: "Send a message to every active member; returns sent/failed/total",
			InputSchema: objectSchema(map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "Message text",
				},
			}, "message"),
		},
	}
}

// registerTools adds every catalog tool to server, dispatching through h.
func registerTools(server *sdkmcp.Server, h *Handler, logger *slog.Logger) {
	for _, def := range buildToolCatalog() {
		name := def.Name
		server.AddTool(&sdkmcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			var args json.RawMessage
			if req != nil && req.Params != nil {
				args = req.Params.Arguments
			}

			result, err := h.Handle(ctx, getOperatorID(ctx), name, args)
			if err != nil {
				apiErr := toAPIError(err)
				if apiErr.Code == "INTERNAL_ERROR" {
					logger.Error("tool failed", "tool", name, "error", err)
				}
				return toolResult(apiErr, true), nil
			}
			return toolResult(result, false), nil
		})
	}
}

func toolResult(payload any, isError bool) *sdkmcp.CallToolResult {
	text := formatPayload(payload)
	return &sdkmcp.CallToolResult{
		Content:           []sdkmcp.Content{&sdkmcp.TextContent{Text: text}},
		StructuredContent: payload,
		IsError:           isError,
	}
}
