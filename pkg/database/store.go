package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite "modernc.org/sqlite"

	"github.com/trapline-sec/trapline/pkg/models"
)

// timeLayout is the storage format for timestamps. Fixed-width microseconds
// in UTC keep lexicographic ordering equal to chronological ordering, which
// the last-hour and retention queries rely on.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// busyRetries bounds how often a write is retried when SQLite reports the
// database busy or locked.
const busyRetries = 5

// updatableSessionFields is the whitelist for UpdateSession, in the order
// the SET clause is built.
var updatableSessionFields = []string{
	"escalation_level",
	"discovered_hosts",
	"discovered_ports",
	"discovered_files",
	"discovered_credentials",
	"metadata",
}

// Store implements all honeypot persistence operations over SQLite.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a Store on the client's connection.
func NewStore(client *Client) *Store {
	return &Store{db: client.DB()}
}

// NewStoreFromDB creates a Store on an existing handle (useful for tests).
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// isBusy reports whether the error is SQLite's transient contention signal.
func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case 5, 6: // SQLITE_BUSY, SQLITE_LOCKED
			return true
		}
		return false
	}
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == 19 // SQLITE_CONSTRAINT
	}
	return false
}

// withRetry runs op, retrying busy errors with bounded exponential backoff.
// Non-busy errors are returned immediately.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	backoff := 10 * time.Millisecond
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		err = op()
		if err == nil || !isBusy(err) {
			return err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}

type sessionRow struct {
	ID                    string `db:"id"`
	ClientInfo            string `db:"client_info"`
	StartedAt             string `db:"started_at"`
	LastSeenAt            string `db:"last_seen_at"`
	EscalationLevel       int    `db:"escalation_level"`
	DiscoveredHosts       string `db:"discovered_hosts"`
	DiscoveredPorts       string `db:"discovered_ports"`
	DiscoveredFiles       string `db:"discovered_files"`
	DiscoveredCredentials string `db:"discovered_credentials"`
	Metadata              string `db:"metadata"`
}

type sessionSummaryRow struct {
	ID               string `db:"id"`
	ClientInfo       string `db:"client_info"`
	StartedAt        string `db:"started_at"`
	LastSeenAt       string `db:"last_seen_at"`
	EscalationLevel  int    `db:"escalation_level"`
	InteractionCount int    `db:"interaction_count"`
	TokenCount       int    `db:"token_count"`
}

type interactionRow struct {
	ID              int64          `db:"id"`
	SessionID       string         `db:"session_id"`
	Timestamp       string         `db:"timestamp"`
	Method          string         `db:"method"`
	ToolName        sql.NullString `db:"tool_name"`
	Params          string         `db:"params"`
	Response        string         `db:"response"`
	EscalationDelta int            `db:"escalation_delta"`
}

type tokenRow struct {
	ID            int64         `db:"id"`
	SessionID     string        `db:"session_id"`
	TokenType     string        `db:"token_type"`
	TokenValue    string        `db:"token_value"`
	Context       string        `db:"context"`
	DeployedAt    string        `db:"deployed_at"`
	InteractionID sql.NullInt64 `db:"interaction_id"`
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(raw)
}

func unmarshalList[T any](raw string) []T {
	var out []T
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func unmarshalMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

// CreateSession inserts a new session row. A duplicate ID returns
// ErrAlreadyExists.
func (s *Store) CreateSession(ctx context.Context, snap models.RestoredSession) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (
				id, client_info, started_at, last_seen_at, escalation_level,
				discovered_hosts, discovered_ports, discovered_files,
				discovered_credentials, metadata
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID,
			mustJSON(snap.ClientInfo),
			encodeTime(snap.StartedAt),
			encodeTime(snap.LastSeenAt),
			snap.EscalationLevel,
			mustJSON(emptyList(snap.Hosts)),
			mustJSON(emptyPortList(snap.Ports)),
			mustJSON(emptyList(snap.Files)),
			mustJSON(emptyList(snap.Credentials)),
			mustJSON(snap.Metadata),
		)
		if isConstraint(err) {
			return fmt.Errorf("session %s: %w", snap.ID, ErrAlreadyExists)
		}
		return err
	})
}

// emptyList keeps JSON columns as [] instead of null for nil slices.
func emptyList(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func emptyPortList(in []models.PortRecord) []models.PortRecord {
	if in == nil {
		return []models.PortRecord{}
	}
	return in
}

// UpdateSession applies whitelisted fields to a session row and always bumps
// last_seen_at. Unknown fields are ignored. A missing session returns
// ErrNotFound.
func (s *Store) UpdateSession(ctx context.Context, id string, fields map[string]any) error {
	setClauses := make([]string, 0, len(updatableSessionFields)+1)
	args := make([]any, 0, len(updatableSessionFields)+2)

	for _, field := range updatableSessionFields {
		value, ok := fields[field]
		if !ok {
			continue
		}
		setClauses = append(setClauses, field+" = ?")
		if field == "escalation_level" {
			args = append(args, value)
		} else {
			args = append(args, mustJSON(value))
		}
	}

	setClauses = append(setClauses, "last_seen_at = ?")
	args = append(args, encodeTime(time.Now()))
	args = append(args, id)

	query := "UPDATE sessions SET " + strings.Join(setClauses, ", ") + " WHERE id = ?"

	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// GetSession loads a session row with its interaction count.
func (s *Store) GetSession(ctx context.Context, id string) (models.RestoredSession, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RestoredSession{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.RestoredSession{}, fmt.Errorf("failed to load session: %w", err)
	}

	count, err := s.InteractionCount(ctx, id)
	if err != nil {
		return models.RestoredSession{}, err
	}

	return models.RestoredSession{
		ID:               row.ID,
		ClientInfo:       unmarshalMap(row.ClientInfo),
		StartedAt:        decodeTime(row.StartedAt),
		LastSeenAt:       decodeTime(row.LastSeenAt),
		EscalationLevel:  row.EscalationLevel,
		Hosts:            unmarshalList[string](row.DiscoveredHosts),
		Ports:            unmarshalList[models.PortRecord](row.DiscoveredPorts),
		Files:            unmarshalList[string](row.DiscoveredFiles),
		Credentials:      unmarshalList[string](row.DiscoveredCredentials),
		InteractionCount: count,
		Metadata:         unmarshalMap(row.Metadata),
	}, nil
}

// LogInteraction appends one interaction record and returns its ID.
func (s *Store) LogInteraction(ctx context.Context, in models.Interaction) (int64, error) {
	params := string(in.Params)
	if params == "" {
		params = "{}"
	}
	response := string(in.Response)
	if response == "" {
		response = "{}"
	}

	var id int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO interactions (
				session_id, timestamp, method, tool_name, params, response, escalation_delta
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			in.SessionID,
			encodeTime(in.Timestamp),
			in.Method,
			in.ToolName,
			params,
			response,
			in.EscalationDelta,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to log interaction: %w", err)
	}
	return id, nil
}

// LogHoneyToken records a deployed token and returns its ID.
func (s *Store) LogHoneyToken(ctx context.Context, tok models.HoneyToken) (int64, error) {
	var id int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO honey_tokens (
				session_id, token_type, token_value, context, deployed_at, interaction_id
			) VALUES (?, ?, ?, ?, ?, ?)`,
			tok.SessionID,
			tok.TokenType,
			tok.TokenValue,
			tok.Context,
			encodeTime(tok.DeployedAt),
			tok.InteractionID,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to log honey token: %w", err)
	}
	return id, nil
}

// InteractionCount returns how many interactions a session has logged.
func (s *Store) InteractionCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM interactions WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count interactions: %w", err)
	}
	return count, nil
}

// TokenCount returns how many honey tokens a session has received.
func (s *Store) TokenCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM honey_tokens WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count honey tokens: %w", err)
	}
	return count, nil
}

// Stats aggregates dashboard statistics across all sessions.
func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	stats := models.Stats{
		ToolUsage:              map[string]int{},
		TokenTypeBreakdown:     map[string]int{},
		EscalationDistribution: map[string]int{},
	}

	if err := s.db.GetContext(ctx, &stats.TotalSessions,
		`SELECT COUNT(*) FROM sessions`); err != nil {
		return stats, fmt.Errorf("failed to count sessions: %w", err)
	}

	cutoff := encodeTime(time.Now().Add(-time.Hour))
	if err := s.db.GetContext(ctx, &stats.ActiveSessionsLastHour,
		`SELECT COUNT(*) FROM sessions WHERE last_seen_at >= ?`, cutoff); err != nil {
		return stats, fmt.Errorf("failed to count active sessions: %w", err)
	}

	var avg sql.NullFloat64
	if err := s.db.GetContext(ctx, &avg,
		`SELECT AVG(escalation_level) FROM sessions`); err != nil {
		return stats, fmt.Errorf("failed to average escalation: %w", err)
	}
	if avg.Valid {
		stats.AvgEscalationLevel = math.Round(avg.Float64*100) / 100
	}

	if err := s.db.GetContext(ctx, &stats.TotalInteractions,
		`SELECT COUNT(*) FROM interactions`); err != nil {
		return stats, fmt.Errorf("failed to count interactions: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.TotalTokensDeployed,
		`SELECT COUNT(*) FROM honey_tokens`); err != nil {
		return stats, fmt.Errorf("failed to count honey tokens: %w", err)
	}

	type bucketRow struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}

	var tools []bucketRow
	if err := s.db.SelectContext(ctx, &tools, `
		SELECT tool_name AS key, COUNT(*) AS count
		FROM interactions WHERE tool_name IS NOT NULL
		GROUP BY tool_name`); err != nil {
		return stats, fmt.Errorf("failed to aggregate tool usage: %w", err)
	}
	for _, row := range tools {
		stats.ToolUsage[row.Key] = row.Count
	}

	var types []bucketRow
	if err := s.db.SelectContext(ctx, &types, `
		SELECT token_type AS key, COUNT(*) AS count
		FROM honey_tokens GROUP BY token_type`); err != nil {
		return stats, fmt.Errorf("failed to aggregate token types: %w", err)
	}
	for _, row := range types {
		stats.TokenTypeBreakdown[row.Key] = row.Count
	}

	var levels []bucketRow
	if err := s.db.SelectContext(ctx, &levels, `
		SELECT CAST(escalation_level AS TEXT) AS key, COUNT(*) AS count
		FROM sessions GROUP BY escalation_level`); err != nil {
		return stats, fmt.Errorf("failed to aggregate escalation levels: %w", err)
	}
	for _, row := range levels {
		stats.EscalationDistribution[row.Key] = row.Count
	}

	return stats, nil
}

// ListSessions returns one page of sessions ordered by most recent activity,
// plus the unpaged total matching the filters.
func (s *Store) ListSessions(ctx context.Context, f models.SessionFilters) (models.SessionListResult, error) {
	where := make([]string, 0, 2)
	args := make([]any, 0, 4)

	if f.EscalationLevel != nil {
		where = append(where, "escalation_level = ?")
		args = append(args, *f.EscalationLevel)
	}
	if f.Since != nil {
		where = append(where, "last_seen_at >= ?")
		args = append(args, encodeTime(*f.Since))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	result := models.SessionListResult{
		Sessions: []models.SessionSummary{},
		Limit:    limit,
		Offset:   offset,
	}

	if err := s.db.GetContext(ctx, &result.TotalCount,
		"SELECT COUNT(*) FROM sessions"+whereClause, args...); err != nil {
		return result, fmt.Errorf("failed to count sessions: %w", err)
	}

	query := `
		SELECT s.id, s.client_info, s.started_at, s.last_seen_at, s.escalation_level,
			(SELECT COUNT(*) FROM interactions i WHERE i.session_id = s.id) AS interaction_count,
			(SELECT COUNT(*) FROM honey_tokens t WHERE t.session_id = s.id) AS token_count
		FROM sessions s` + whereClause + `
		ORDER BY s.last_seen_at DESC
		LIMIT ? OFFSET ?`

	var rows []sessionSummaryRow
	if err := s.db.SelectContext(ctx, &rows, query, append(args, limit, offset)...); err != nil {
		return result, fmt.Errorf("failed to list sessions: %w", err)
	}

	for _, row := range rows {
		result.Sessions = append(result.Sessions, models.SessionSummary{
			ID:               row.ID,
			ClientInfo:       unmarshalMap(row.ClientInfo),
			StartedAt:        decodeTime(row.StartedAt),
			LastSeenAt:       decodeTime(row.LastSeenAt),
			EscalationLevel:  row.EscalationLevel,
			InteractionCount: row.InteractionCount,
			TokenCount:       row.TokenCount,
		})
	}

	return result, nil
}

// SessionInteractions returns a session's interactions in chronological order.
func (s *Store) SessionInteractions(ctx context.Context, sessionID string, limit, offset int) ([]models.Interaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var rows []interactionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM interactions
		WHERE session_id = ?
		ORDER BY id ASC
		LIMIT ? OFFSET ?`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}

	out := make([]models.Interaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, interactionFromRow(row))
	}
	return out, nil
}

// SessionTokens returns all tokens deployed to a session in deployment order.
func (s *Store) SessionTokens(ctx context.Context, sessionID string) ([]models.HoneyToken, error) {
	var rows []tokenRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM honey_tokens
		WHERE session_id = ?
		ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session tokens: %w", err)
	}

	out := make([]models.HoneyToken, 0, len(rows))
	for _, row := range rows {
		out = append(out, tokenFromRow(row))
	}
	return out, nil
}

// ListTokens returns one page of deployed tokens, newest first, plus the
// unpaged total matching the filter.
func (s *Store) ListTokens(ctx context.Context, f models.TokenFilters) ([]models.HoneyToken, int, error) {
	where := ""
	args := []any{}
	if f.TokenType != "" {
		where = " WHERE token_type = ?"
		args = append(args, f.TokenType)
	}

	var total int
	if err := s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM honey_tokens"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count honey tokens: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var rows []tokenRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM honey_tokens"+where+" ORDER BY id DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list honey tokens: %w", err)
	}

	out := make([]models.HoneyToken, 0, len(rows))
	for _, row := range rows {
		out = append(out, tokenFromRow(row))
	}
	return out, total, nil
}

// ClearAll deletes every session, interaction, and token. Used by tests and
// operational tooling, never exposed over HTTP.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		for _, table := range []string{"honey_tokens", "interactions", "sessions"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return tx.Commit()
	})
}

// PurgeTokensOlderThan deletes tokens deployed more than the given number of
// days ago and returns how many were removed.
func (s *Store) PurgeTokensOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := encodeTime(time.Now().AddDate(0, 0, -days))

	var purged int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM honey_tokens WHERE deployed_at < ?`, cutoff)
		if err != nil {
			return err
		}
		purged, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge honey tokens: %w", err)
	}
	return purged, nil
}

func interactionFromRow(row interactionRow) models.Interaction {
	var toolName *string
	if row.ToolName.Valid {
		toolName = &row.ToolName.String
	}
	return models.Interaction{
		ID:              row.ID,
		SessionID:       row.SessionID,
		Timestamp:       decodeTime(row.Timestamp),
		Method:          row.Method,
		ToolName:        toolName,
		Params:          json.RawMessage(row.Params),
		Response:        json.RawMessage(row.Response),
		EscalationDelta: row.EscalationDelta,
	}
}

func tokenFromRow(row tokenRow) models.HoneyToken {
	var interactionID *int64
	if row.InteractionID.Valid {
		interactionID = &row.InteractionID.Int64
	}
	return models.HoneyToken{
		ID:            row.ID,
		SessionID:     row.SessionID,
		TokenType:     row.TokenType,
		TokenValue:    row.TokenValue,
		Context:       row.Context,
		DeployedAt:    decodeTime(row.DeployedAt),
		InteractionID: interactionID,
	}
}
