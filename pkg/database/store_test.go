package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trapline-sec/trapline/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(newTestClient(t))
}

func seedSession(t *testing.T, store *Store, id string) models.RestoredSession {
	t.Helper()

	now := time.Now().UTC()
	snap := models.RestoredSession{
		ID:         id,
		ClientInfo: map[string]any{"name": "test-client", "version": "1.0"},
		StartedAt:  now,
		LastSeenAt: now,
		Metadata:   map[string]any{},
	}
	require.NoError(t, store.CreateSession(context.Background(), snap))
	return snap
}

func TestCreateAndGetSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC)
	snap := models.RestoredSession{
		ID:              "0123456789abcdef0123456789abcdef",
		ClientInfo:      map[string]any{"name": "claude-desktop"},
		StartedAt:       now,
		LastSeenAt:      now,
		EscalationLevel: 2,
		Hosts:           []string{"10.0.1.10", "10.0.1.30"},
		Ports:           []models.PortRecord{{Host: "10.0.1.10", Port: 22, Service: "ssh"}},
		Files:           []string{"/app/.env"},
		Credentials:     []string{"api_token:vault:secret/prod/api-keys"},
		Metadata:        map[string]any{"note": "seeded"},
	}
	require.NoError(t, store.CreateSession(ctx, snap))

	got, err := store.GetSession(ctx, snap.ID)
	require.NoError(t, err)

	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, "claude-desktop", got.ClientInfo["name"])
	assert.Equal(t, 2, got.EscalationLevel)
	assert.Equal(t, snap.Hosts, got.Hosts)
	assert.Equal(t, snap.Ports, got.Ports)
	assert.Equal(t, snap.Files, got.Files)
	assert.Equal(t, snap.Credentials, got.Credentials)
	assert.Equal(t, 0, got.InteractionCount)
	assert.True(t, got.StartedAt.Equal(now))
}

func TestCreateSessionDuplicate(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "aaaa0000aaaa0000aaaa0000aaaa0000")

	err := store.CreateSession(context.Background(), models.RestoredSession{
		ID:        "aaaa0000aaaa0000aaaa0000aaaa0000",
		StartedAt: time.Now(), LastSeenAt: time.Now(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetSessionNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSession(context.Background(), "ffffffffffffffffffffffffffffffff")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSessionWhitelist(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSession(t, store, "bbbb0000bbbb0000bbbb0000bbbb0000")

	before, err := store.GetSession(ctx, "bbbb0000bbbb0000bbbb0000bbbb0000")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	err = store.UpdateSession(ctx, "bbbb0000bbbb0000bbbb0000bbbb0000", map[string]any{
		"escalation_level": 3,
		"discovered_hosts": []string{"10.0.1.50"},
		"id":               "evil", // not whitelisted, must be ignored
		"started_at":       "evil",
	})
	require.NoError(t, err)

	after, err := store.GetSession(ctx, "bbbb0000bbbb0000bbbb0000bbbb0000")
	require.NoError(t, err)

	assert.Equal(t, 3, after.EscalationLevel)
	assert.Equal(t, []string{"10.0.1.50"}, after.Hosts)
	assert.Equal(t, "bbbb0000bbbb0000bbbb0000bbbb0000", after.ID)
	assert.True(t, after.StartedAt.Equal(before.StartedAt))
	assert.True(t, after.LastSeenAt.After(before.LastSeenAt),
		"updates must always bump last_seen_at")
}

func TestUpdateSessionNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateSession(context.Background(),
		"ffffffffffffffffffffffffffffffff", map[string]any{"escalation_level": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func toolPtr(name string) *string { return &name }

func TestLogInteractionAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSession(t, store, "cccc0000cccc0000cccc0000cccc0000")

	for i, tool := range []string{"nmap_scan", "shell_exec", "file_read"} {
		id, err := store.LogInteraction(ctx, models.Interaction{
			SessionID:       "cccc0000cccc0000cccc0000cccc0000",
			Timestamp:       time.Now().Add(time.Duration(i) * time.Second),
			Method:          "tools/call",
			ToolName:        toolPtr(tool),
			Params:          json.RawMessage(`{"target":"10.0.0.0/24"}`),
			Response:        json.RawMessage(`{"output":"ok","isError":false}`),
			EscalationDelta: i % 2,
		})
		require.NoError(t, err)
		assert.Positive(t, id)
	}

	count, err := store.InteractionCount(ctx, "cccc0000cccc0000cccc0000cccc0000")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	all, err := store.SessionInteractions(ctx, "cccc0000cccc0000cccc0000cccc0000", 50, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "nmap_scan", *all[0].ToolName)
	assert.Equal(t, "file_read", *all[2].ToolName)
	assert.JSONEq(t, `{"target":"10.0.0.0/24"}`, string(all[0].Params))

	page, err := store.SessionInteractions(ctx, "cccc0000cccc0000cccc0000cccc0000", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "shell_exec", *page[0].ToolName)
}

func TestLogInteractionWithoutTool(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSession(t, store, "dddd0000dddd0000dddd0000dddd0000")

	_, err := store.LogInteraction(ctx, models.Interaction{
		SessionID: "dddd0000dddd0000dddd0000dddd0000",
		Timestamp: time.Now(),
		Method:    "initialize",
	})
	require.NoError(t, err)

	all, err := store.SessionInteractions(ctx, "dddd0000dddd0000dddd0000dddd0000", 50, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Nil(t, all[0].ToolName)
	assert.JSONEq(t, `{}`, string(all[0].Params))
}

func TestHoneyTokenQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSession(t, store, "eeee0000eeee0000eeee0000eeee0000")

	types := []string{"aws_access_key", "db_credential", "aws_access_key"}
	for i, tokenType := range types {
		_, err := store.LogHoneyToken(ctx, models.HoneyToken{
			SessionID:  "eeee0000eeee0000eeee0000eeee0000",
			TokenType:  tokenType,
			TokenValue: "value-" + tokenType,
			Context:    "test",
			DeployedAt: time.Now().Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	count, err := store.TokenCount(ctx, "eeee0000eeee0000eeee0000eeee0000")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	session, err := store.SessionTokens(ctx, "eeee0000eeee0000eeee0000eeee0000")
	require.NoError(t, err)
	require.Len(t, session, 3)
	assert.Equal(t, "aws_access_key", session[0].TokenType)

	// Newest first with a type filter.
	filtered, total, err := store.ListTokens(ctx, models.TokenFilters{TokenType: "aws_access_key"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, filtered, 2)
	assert.True(t, filtered[0].ID > filtered[1].ID)

	all, total, err := store.ListTokens(ctx, models.TokenFilters{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 2)
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedSession(t, store, "11110000111100001111000011110000")
	seedSession(t, store, "22220000222200002222000022220000")
	require.NoError(t, store.UpdateSession(ctx,
		"22220000222200002222000022220000", map[string]any{"escalation_level": 3}))

	for _, tool := range []string{"nmap_scan", "nmap_scan", "shell_exec"} {
		_, err := store.LogInteraction(ctx, models.Interaction{
			SessionID: "11110000111100001111000011110000",
			Timestamp: time.Now(),
			Method:    "tools/call",
			ToolName:  toolPtr(tool),
		})
		require.NoError(t, err)
	}

	_, err := store.LogHoneyToken(ctx, models.HoneyToken{
		SessionID:  "22220000222200002222000022220000",
		TokenType:  "ssh_key",
		TokenValue: "fake",
		DeployedAt: time.Now(),
	})
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 2, stats.ActiveSessionsLastHour)
	assert.InDelta(t, 1.5, stats.AvgEscalationLevel, 0.001)
	assert.Equal(t, 3, stats.TotalInteractions)
	assert.Equal(t, 1, stats.TotalTokensDeployed)
	assert.Equal(t, map[string]int{"nmap_scan": 2, "shell_exec": 1}, stats.ToolUsage)
	assert.Equal(t, map[string]int{"ssh_key": 1}, stats.TokenTypeBreakdown)
	assert.Equal(t, map[string]int{"0": 1, "3": 1}, stats.EscalationDistribution)
}

func TestStatsEmptyDatabase(t *testing.T) {
	store := newTestStore(t)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)

	assert.Zero(t, stats.TotalSessions)
	assert.Zero(t, stats.AvgEscalationLevel)
	assert.Empty(t, stats.ToolUsage)
}

func TestListSessionsFiltersAndPaging(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedSession(t, store, "31110000111100001111000011110000")
	seedSession(t, store, "32220000222200002222000022220000")
	seedSession(t, store, "33330000333300003333000033330000")
	require.NoError(t, store.UpdateSession(ctx,
		"33330000333300003333000033330000", map[string]any{"escalation_level": 2}))

	level := 2
	filtered, err := store.ListSessions(ctx, models.SessionFilters{EscalationLevel: &level})
	require.NoError(t, err)
	assert.Equal(t, 1, filtered.TotalCount)
	require.Len(t, filtered.Sessions, 1)
	assert.Equal(t, "33330000333300003333000033330000", filtered.Sessions[0].ID)

	page, err := store.ListSessions(ctx, models.SessionFilters{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	assert.Len(t, page.Sessions, 2)
	// Most recently seen first: the updated session got its last_seen bumped.
	assert.Equal(t, "33330000333300003333000033330000", page.Sessions[0].ID)

	since := time.Now().Add(time.Hour)
	none, err := store.ListSessions(ctx, models.SessionFilters{Since: &since})
	require.NoError(t, err)
	assert.Zero(t, none.TotalCount)
	assert.Empty(t, none.Sessions)
}

func TestForeignKeyCascade(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSession(t, store, "41110000111100001111000011110000")

	_, err := store.LogInteraction(ctx, models.Interaction{
		SessionID: "41110000111100001111000011110000",
		Timestamp: time.Now(),
		Method:    "tools/call",
		ToolName:  toolPtr("nmap_scan"),
	})
	require.NoError(t, err)
	_, err = store.LogHoneyToken(ctx, models.HoneyToken{
		SessionID:  "41110000111100001111000011110000",
		TokenType:  "api_token",
		TokenValue: "fake",
		DeployedAt: time.Now(),
	})
	require.NoError(t, err)

	_, err = store.db.Exec(`DELETE FROM sessions WHERE id = ?`,
		"41110000111100001111000011110000")
	require.NoError(t, err)

	count, err := store.InteractionCount(ctx, "41110000111100001111000011110000")
	require.NoError(t, err)
	assert.Zero(t, count)

	tokens, err := store.SessionTokens(ctx, "41110000111100001111000011110000")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestClearAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSession(t, store, "51110000111100001111000011110000")

	_, err := store.LogInteraction(ctx, models.Interaction{
		SessionID: "51110000111100001111000011110000",
		Timestamp: time.Now(),
		Method:    "ping",
	})
	require.NoError(t, err)

	require.NoError(t, store.ClearAll(ctx))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalSessions)
	assert.Zero(t, stats.TotalInteractions)
}

func TestPurgeTokensOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSession(t, store, "61110000111100001111000011110000")

	// One stale token written directly with an old deployed_at.
	_, err := store.db.Exec(`
		INSERT INTO honey_tokens (session_id, token_type, token_value, context, deployed_at)
		VALUES (?, ?, ?, ?, ?)`,
		"61110000111100001111000011110000", "api_token", "stale", "",
		encodeTime(time.Now().AddDate(0, 0, -45)))
	require.NoError(t, err)

	_, err = store.LogHoneyToken(ctx, models.HoneyToken{
		SessionID:  "61110000111100001111000011110000",
		TokenType:  "api_token",
		TokenValue: "fresh",
		DeployedAt: time.Now(),
	})
	require.NoError(t, err)

	purged, err := store.PurgeTokensOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	remaining, err := store.SessionTokens(ctx, "61110000111100001111000011110000")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "fresh", remaining[0].TokenValue)
}
