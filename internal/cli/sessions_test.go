package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tracecap/internal/check"
	"github.com/roach88/tracecap/internal/report"
	"github.com/roach88/tracecap/internal/testutil"
)

func seedDatabase(t *testing.T) (string, uuid.UUID) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "findings.db")
	store, err := report.Open(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, store.WriteSession(ctx, report.SessionRecord{
		ID:         id,
		StartedAt:  testutil.Base,
		Duration:   6 * time.Second,
		Env:        "desktop",
		User:       "tester",
		Task:       "navigate the menu",
		TargetFPS:  20,
		FrameCount: 120,
		AppVersion: "1.2.0",
	}))
	require.NoError(t, store.WriteFindings(ctx, id, []check.Finding{
		{Severity: check.SeverityError, Code: check.CodeFPSMismatch, Frame: -1, Message: "expected 20 fps but got 17.50"},
	}))
	return path, id
}

func TestSessionsListsRows(t *testing.T) {
	path, id := seedDatabase(t)

	out, err := runCommand(t, "sessions", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, id.String())
	assert.Contains(t, out, "navigate the menu")
	assert.Contains(t, out, "120 frames")
	assert.NotContains(t, out, "FPS_MISMATCH")
}

func TestSessionsWithFindings(t *testing.T) {
	path, _ := seedDatabase(t)

	out, err := runCommand(t, "sessions", "--db", path, "--findings")
	require.NoError(t, err)
	assert.Contains(t, out, "FPS_MISMATCH")
}

func TestSessionsJSON(t *testing.T) {
	path, id := seedDatabase(t)

	out, err := runCommand(t, "sessions", "--db", path, "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var summaries []SessionSummary
	require.NoError(t, json.Unmarshal(data, &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, id.String(), summaries[0].ID)
}

func TestSessionsEmptyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "findings.db")

	out, err := runCommand(t, "sessions", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "no sessions recorded")
}

func TestSessionsRequiresDatabaseFlag(t *testing.T) {
	_, err := runCommand(t, "sessions")
	assert.Error(t, err)
}
