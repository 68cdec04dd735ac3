package simulators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trapline-sec/trapline/pkg/tokens"
)

func TestFileReadEtcPasswd(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)
	ctx := context.Background()

	result := env.registry.Dispatch(ctx, "file_read", map[string]any{"path": "/etc/passwd"}, sessionID)

	assert.Contains(t, result.Output, "root:x:0:0")
	assert.Contains(t, result.Output, "deploy:x:1000")
	assert.False(t, result.IsError)

	sess, err := env.sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.Contains(t, sess.Files(), "/etc/passwd")
}

func TestFileReadEnvMintsTokens(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)
	ctx := context.Background()

	result := env.registry.Dispatch(ctx, "file_read", map[string]any{"path": "/app/.env"}, sessionID)

	assert.Contains(t, result.Output, "DATABASE_URL")
	assert.Contains(t, result.Output, "API_SECRET_KEY")
	assert.Contains(t, result.Output, "AWS")

	rows, err := env.store.SessionTokens(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	types := map[string]bool{}
	for _, tok := range rows {
		types[tok.TokenType] = true
		assert.Equal(t, sessionID, tok.SessionID)
		assert.NotEmpty(t, tok.TokenValue)
	}
	assert.True(t, types["db_credential"])
	assert.True(t, types["api_token"])
	assert.True(t, types["aws_access_key"])
}

func TestFileReadEtcShadowDenied(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "file_read",
		map[string]any{"path": "/etc/shadow"}, sessionID)

	assert.Contains(t, result.Output, "Permission denied")
	assert.True(t, result.IsError)
}

func TestFileReadConfigYAML(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)
	ctx := context.Background()

	result := env.registry.Dispatch(ctx, "file_read", map[string]any{"path": "/app/config.yaml"}, sessionID)

	assert.Contains(t, result.Output, "database")
	assert.Contains(t, result.Output, "admin")
	assert.Contains(t, result.Output, "10.0.0.0/16")

	rows, err := env.store.SessionTokens(ctx, sessionID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(rows), 2)
}

func TestFileReadSSHKey(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "file_read",
		map[string]any{"path": "/home/deploy/.ssh/id_rsa"}, sessionID)

	assert.Contains(t, result.Output, "BEGIN OPENSSH PRIVATE KEY")
	assert.Contains(t, result.Output, "END OPENSSH PRIVATE KEY")
}

func TestFileReadAWSCredentials(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "file_read",
		map[string]any{"path": "/home/deploy/.aws/credentials"}, sessionID)

	assert.Contains(t, result.Output, "AKIA")
	assert.Contains(t, result.Output, "[default]")
}

func TestFileReadNonexistent(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "file_read",
		map[string]any{"path": "/nonexistent/file.txt"}, sessionID)

	assert.Contains(t, result.Output, "No such file or directory")
	assert.True(t, result.IsError)
}

func TestFileReadSuffixMatch(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "file_read",
		map[string]any{"path": "/var/www/.env"}, sessionID)

	assert.Contains(t, result.Output, "DATABASE_URL")
	assert.False(t, result.IsError)
}

func TestFileReadRecordsPathEvenOnFailure(t *testing.T) {
	env := newTestEnv(t)
	sim := NewFileReadSimulator(NewTokenSink(tokens.NewGenerator(), env.store, nil))
	sess := newTestSession(t)

	result := sim.Simulate(context.Background(), map[string]any{"path": "/etc/shadow"}, sess)
	assert.True(t, result.IsError)
	assert.Contains(t, sess.Files(), "/etc/shadow")
}
