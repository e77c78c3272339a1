package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLIWorkflow(t *testing.T) {
	t.Setenv("FLEET_SQLITE_PATH", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("FLEET_LOG_LEVEL", "error")

	out, err := run(t, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "schema ready")

	out, err = run(t, "aircraft", "add", "vh-cli", "--model", "E190", "-o", "json")
	require.NoError(t, err)
	var added []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	require.Len(t, added, 1)
	assert.Equal(t, "VH-CLI", added[0]["tail_number"])
	assert.Equal(t, "UNKNOWN", added[0]["current_status"])

	_, err = run(t, "transition", "1", "aog", "--at", "2026-06-01T08:00:00Z", "-d", "tyre change", "--actor", "tester")
	require.NoError(t, err)

	out, err = run(t, "list", "AOG")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "TAIL")
	assert.Contains(t, lines[1], "VH-CLI")
	assert.Contains(t, lines[1], "tyre change")

	out, err = run(t, "list", "aog", "-o", "json")
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	interval, ok := entries[0]["interval"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "AOG", interval["status"])
	assert.Equal(t, "2026-06-01T08:00:00Z", interval["start_time"])
	assert.Contains(t, entries[0], "since_seconds")

	_, err = run(t, "transition", "1", "IN_SERVICE", "--at", "2026-05-01T08:00:00Z")
	assert.Error(t, err)

	out, err = run(t, "aircraft", "list", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "current_status: AOG")
	assert.Contains(t, out, "tail_number: VH-CLI")
}

func TestCLIRejectsBadConfig(t *testing.T) {
	_, err := run(t, "aircraft", "list", "--driver", "oracle")
	assert.Error(t, err)

	_, err = run(t, "aircraft", "list", "-o", "xml")
	assert.Error(t, err)
}

func TestNotifiersWithoutSinks(t *testing.T) {
	a := &app{log: zap.NewNop()}
	n, cleanup, err := a.notifiers(context.Background())
	require.NoError(t, err)
	assert.Nil(t, n)
	require.NotNil(t, cleanup)
	cleanup()
}

func TestNotifiersUnreachableNATS(t *testing.T) {
	a := &app{log: zap.NewNop()}
	a.cfg.NATS.URL = "nats://127.0.0.1:1"

	n, cleanup, err := a.notifiers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect nats")
	assert.Nil(t, n)
	assert.Nil(t, cleanup)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "hydraul...", truncate("hydraulic leak", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
