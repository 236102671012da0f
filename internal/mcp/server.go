package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/admission/internal/admission"
	"github.com/rpggio/admission/internal/domain/audit"
	"github.com/rpggio/admission/internal/domain/member"
	"github.com/rpggio/admission/internal/domain/queue"
	"github.com/rpggio/admission/internal/domain/report"
	"github.com/rpggio/admission/internal/notify"
)

// AdmissionService defines the workflow operations needed by MCP.
type AdmissionService interface {
	Join(ctx context.Context, req admission.JoinRequest) (*admission.JoinResult, error)
	Reprioritize(ctx context.Context, operatorID, memberID string, tier int) (*admission.Placement, error)
	Promote(ctx context.Context, operatorID, memberID string) (*admission.Placement, error)
	Demote(ctx context.Context, operatorID, memberID string) (*admission.Placement, error)
	Move(ctx context.Context, operatorID, memberID string, position int) (*admission.Placement, error)
	Serve(ctx context.Context, operatorID, memberID string) (bool, error)
	Remove(ctx context.Context, operatorID, memberID string) (bool, error)
	SetActive(ctx context.Context, operatorID, memberID string, active bool) (*member.Member, error)
	ChangeReason(ctx context.Context, operatorID, memberID, reason string) (*member.Member, *admission.Placement, error)
	Broadcast(ctx context.Context, operatorID, text string) (notify.BroadcastResult, error)
}

// ReportService defines read-only queue views needed by MCP.
type ReportService interface {
	Position(ctx context.Context, memberID string) (*report.MemberStatus, error)
	Listing(ctx context.Context, limit int) ([]queue.Entry, error)
	TierListing(ctx context.Context, tier int) ([]queue.Entry, error)
	Summary(ctx context.Context) (*report.Summary, error)
}

// MemberService defines member lookups needed by MCP.
type MemberService interface {
	Get(ctx context.Context, id string) (*member.Member, error)
	GetByExternalID(ctx context.Context, externalID string) (*member.Member, error)
	List(ctx context.Context) ([]member.Member, error)
	ListActive(ctx context.Context) ([]member.Member, error)
	Tiers() *member.TierTable
}

// AuditService defines audit reads needed by MCP.
type AuditService interface {
	List(ctx context.Context, opts audit.ListOptions) ([]audit.Entry, error)
}

// HistoryService returns a member's ticket history.
type HistoryService interface {
	History(ctx context.Context, memberID string) ([]queue.Ticket, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Admission AdmissionService
	Reports   ReportService
	Members   MemberService
	Audits    AuditService
	History   HistoryService
}

// Config contains server configuration.
type Config struct {
	Services        Services
	Resolver        OperatorResolver
	AuthEnabled     bool
	TransportMode   string // "stdio" or "http"
	ConsoleOperator string
	Logger          *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "admission",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Stdio is a local console: every call acts as the console operator.
	identity := authMiddleware(cfg.Resolver)
	if cfg.TransportMode == "stdio" || !cfg.AuthEnabled {
		identity = consoleMiddleware(cfg.ConsoleOperator)
	}
	// Within one call the first middleware is outermost, so traffic logging
	// sees the resolved operator.
	server.AddReceivingMiddleware(identity, trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, NewHandler(cfg.Services), cfg.Logger)

	return server
}
