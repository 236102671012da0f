package functional_test

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

func newStdioSession(t *testing.T, extraEnv ...string) *sdkmcp.ClientSession {
	t.Helper()

	// Find the binary
	binaryPath := "./bin/admission"
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		binaryPath = "../../bin/admission"
		if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
			t.Skip("Server binary not found. Run 'go build -o bin/admission ./cmd/server' first.")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	cmd := exec.CommandContext(ctx, binaryPath)
	cmd.Env = append(os.Environ(),
		"ADMISSION_TRANSPORT_MODE=stdio",
		"ADMISSION_DB_PATH=:memory:",
		"ADMISSION_METRICS_ENABLED=false",
	)
	cmd.Env = append(cmd.Env, extraEnv...)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, &sdkmcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		cancel()
		t.Fatalf("Failed to connect: %v", err)
	}

	t.Cleanup(func() {
		session.Close()
		cancel()
	})

	return session
}

func TestStdio_ServerInfoAndTools(t *testing.T) {
	session := newStdioSession(t)
	ctx := context.Background()

	initResult := session.InitializeResult()
	require.NotNil(t, initResult)
	require.Equal(t, "admission", initResult.ServerInfo.Name)
	require.Contains(t, initResult.Instructions, "admission://docs/ordering")

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	names := make(map[string]bool, len(tools.Tools))
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"join_queue", "queue_position", "move_position", "mark_served", "broadcast"} {
		require.True(t, names[want], "missing tool %s", want)
	}
}

func TestStdio_ConsoleOperatorIsAudited(t *testing.T) {
	session := newStdioSession(t, "ADMISSION_CONSOLE_OPERATOR=desk")

	join(t, session, "s1", "veteran")
	join(t, session, "s2", "veteran")
	callTool(t, session, "move_position", map[string]any{"external_id": "s2", "position": 0})
	require.Equal(t, 1, rankOf(t, session, "s2"))

	var log struct {
		Entries []struct {
			OperatorID string `json:"operator_id"`
			Action     string `json:"action"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(callTool(t, session, "audit_log", nil), &log))
	require.Len(t, log.Entries, 1)
	require.Equal(t, "desk", log.Entries[0].OperatorID)
	require.Equal(t, "move_position", log.Entries[0].Action)
}
