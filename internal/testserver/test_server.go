// Package testserver runs the full admission stack behind an HTTP MCP
// endpoint for end-to-end tests.
package testserver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/admission/internal/admission"
	"github.com/rpggio/admission/internal/domain/audit"
	"github.com/rpggio/admission/internal/domain/member"
	"github.com/rpggio/admission/internal/domain/queue"
	"github.com/rpggio/admission/internal/domain/report"
	"github.com/rpggio/admission/internal/mcp"
	"github.com/rpggio/admission/internal/metrics"
	"github.com/rpggio/admission/internal/notify"
	"github.com/rpggio/admission/internal/sqlite"
	"github.com/stretchr/testify/require"
)

// Reasons is the tier table every test server starts with.
var Reasons = []member.Reason{
	{Code: "veteran", Label: "Veteran", Tier: 1},
	{Code: "resident", Label: "Resident", Tier: 2},
	{Code: "invited", Label: "Invited", Tier: 3},
}

// FallbackTier is the tier for undeclared reasons.
const FallbackTier = 9

type TestServer struct {
	Server   *httptest.Server
	DB       *sqlite.DB
	Token    string
	Operator string
	Metrics  *metrics.Collector
	Queue    *queue.Service
}

func New(t *testing.T, token, operator string) *TestServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	tiers, err := member.NewTierTable(Reasons, FallbackTier, 1, FallbackTier)
	require.NoError(t, err)

	collector := metrics.New("admission_test")
	memberSvc := member.NewService(sqlite.NewMemberRepository(db), tiers, nil)
	auditSvc := audit.NewService(sqlite.NewAuditRepository(db), nil)
	queueSvc := queue.NewService(sqlite.NewTicketRepository(db), memberSvc, tiers, auditSvc,
		queue.Options{Observer: collector}, nil)
	dispatcher := notify.NewDispatcher(notify.NewLogNotifier(nil), notify.Options{}, nil)
	admissionSvc := admission.NewService(memberSvc, queueSvc, auditSvc, dispatcher, collector, nil)
	keys := sqlite.NewOperatorKeyRepository(db)

	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Admission: admissionSvc,
			Reports:   report.NewService(queueSvc, memberSvc, nil),
			Members:   memberSvc,
			Audits:    auditSvc,
			History:   queueSvc,
		},
		Resolver:      keys,
		AuthEnabled:   true,
		TransportMode: "http",
	})
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{SessionTimeout: time.Minute},
	)

	router := http.NewServeMux()
	router.Handle("/mcp", mcpHandler)
	router.Handle("/metrics", collector.Handler())
	server := httptest.NewServer(router)

	ts := &TestServer{
		Server:   server,
		DB:       db,
		Token:    token,
		Operator: operator,
		Metrics:  collector,
		Queue:    queueSvc,
	}

	require.NoError(t, keys.Create(context.Background(), token, operator, "test key"))

	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
	})

	return ts
}

// Connect opens an MCP client session that authenticates with token. An
// empty token sends no Authorization header.
func (ts *TestServer) Connect(t *testing.T, token string) *sdkmcp.ClientSession {
	t.Helper()

	transport := &sdkmcp.StreamableClientTransport{
		Endpoint:   ts.Server.URL + "/mcp",
		HTTPClient: &http.Client{Transport: bearerTransport{token: token, base: http.DefaultTransport}},
	}
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	session, err := client.Connect(ctx, transport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (b bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if b.token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	return b.base.RoundTrip(req)
}
