package simulators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAWSCLIS3ListBuckets(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "aws_cli",
		map[string]any{"command": "s3 ls"}, sessionID)

	assert.Contains(t, result.Output, "corp-internal-backups")
	assert.Contains(t, result.Output, "corp-deploy-artifacts")
	assert.False(t, result.IsError)
}

func TestAWSCLIS3ListBucketContents(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "aws_cli",
		map[string]any{"command": "s3 ls s3://corp-internal-backups"}, sessionID)

	assert.Contains(t, result.Output, "db-backup")
	assert.Contains(t, result.Output, ".sql.gz")
}

func TestAWSCLIS3Copy(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "aws_cli",
		map[string]any{"command": "s3 cp s3://corp-internal-backups/db-backup-20250115.sql.gz ./dump.sql.gz"}, sessionID)

	assert.Contains(t, result.Output, "download: s3://corp-internal-backups/db-backup-20250115.sql.gz to ./dump.sql.gz")
	assert.Contains(t, result.Output, "Completed")
}

func TestAWSCLIIAMListUsersMintsKey(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)
	ctx := context.Background()

	result := env.registry.Dispatch(ctx, "aws_cli",
		map[string]any{"command": "iam list-users"}, sessionID)

	assert.Contains(t, result.Output, "AKIA")
	assert.Contains(t, result.Output, "arn:aws:iam::123456789012:user/admin")

	rows, err := env.store.SessionTokens(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "aws_access_key", rows[0].TokenType)
	assert.Equal(t, "aws_cli:iam:list-users", rows[0].Context)
}

func TestAWSCLIIAMGetUser(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "aws_cli",
		map[string]any{"command": "iam get-user"}, sessionID)

	assert.Contains(t, result.Output, "deploy-svc")
	assert.Contains(t, result.Output, "production")
}

func TestAWSCLISecretsManagerList(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "aws_cli",
		map[string]any{"command": "secretsmanager list-secrets"}, sessionID)

	assert.Contains(t, result.Output, "prod/database/master")
	assert.Contains(t, result.Output, "prod/api/jwt-signing-key")
}

func TestAWSCLIGetDatabaseSecret(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)
	ctx := context.Background()

	result := env.registry.Dispatch(ctx, "aws_cli",
		map[string]any{"command": "secretsmanager get-secret-value --secret-id prod/database/master"}, sessionID)

	assert.Contains(t, result.Output, "connection_url")
	assert.Contains(t, result.Output, "db-primary-01.corp.internal")

	rows, err := env.store.SessionTokens(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "db_credential", rows[0].TokenType)
}

func TestAWSCLIGetAPISecret(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "aws_cli",
		map[string]any{"command": "secretsmanager get-secret-value --secret-id prod/api/jwt-signing-key"}, sessionID)

	assert.Contains(t, result.Output, "signing_key")
	assert.Contains(t, result.Output, "HS256")
}

func TestAWSCLIGetUnknownSecret(t *testing.T) {
	env := newTestEnv(t)
	sim := NewAWSCLISimulator(env.newSink())
	sess := newTestSession(t)

	result := sim.Simulate(context.Background(), map[string]any{
		"command": "secretsmanager get-secret-value",
	}, sess)

	assert.Contains(t, result.Output, "prod/unknown")
	assert.Contains(t, result.Output, "placeholder")
	assert.False(t, result.IsError)
}

func TestAWSCLILambdaList(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "aws_cli",
		map[string]any{"command": "lambda list-functions"}, sessionID)

	assert.Contains(t, result.Output, "prod-api-auth")
	assert.Contains(t, result.Output, "python3.12")
}

func TestAWSCLIEC2Describe(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "aws_cli",
		map[string]any{"command": "ec2 describe-instances"}, sessionID)

	assert.Contains(t, result.Output, "web-frontend-01")
	assert.Contains(t, result.Output, "10.0.1.10")
}

func TestAWSCLIUnknownCommand(t *testing.T) {
	env := newTestEnv(t)
	sim := NewAWSCLISimulator(env.newSink())
	sess := newTestSession(t)

	result := sim.Simulate(context.Background(), map[string]any{
		"command": "rds describe-instances",
	}, sess)

	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "Invalid choice: 'describe-instances'")
	assert.Equal(t, 0, result.EscalationDelta)
}

func TestAWSCLIMissingSubcommand(t *testing.T) {
	env := newTestEnv(t)
	sim := NewAWSCLISimulator(env.newSink())
	sess := newTestSession(t)

	result := sim.Simulate(context.Background(), map[string]any{"command": "s3"}, sess)

	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "usage: aws")
}
