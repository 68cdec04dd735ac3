package simulators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDockerRegistryList(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "docker_registry",
		map[string]any{"action": "list"}, sessionID)

	assert.Contains(t, result.Output, "corp/api-gateway")
	assert.Contains(t, result.Output, "corp/admin-portal")
	assert.Contains(t, result.Output, "corp/backup-agent")
	assert.Contains(t, result.Output, "Total: 6 repositories")
	assert.False(t, result.IsError)
}

func TestDockerRegistryListCustomURL(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "docker_registry", map[string]any{
		"action": "list", "registry_url": "registry.other.internal:5000",
	}, sessionID)

	assert.Contains(t, result.Output, "Repositories at registry.other.internal:5000:")
}

func TestDockerRegistryInspectLeaksEnv(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)
	ctx := context.Background()

	result := env.registry.Dispatch(ctx, "docker_registry",
		map[string]any{"action": "inspect"}, sessionID)

	assert.Contains(t, result.Output, `"repository": "corp/api-gateway"`)
	assert.Contains(t, result.Output, "DATABASE_URL=")
	assert.Contains(t, result.Output, "API_SECRET_KEY=")
	assert.Contains(t, result.Output, "sha256:")

	rows, err := env.store.SessionTokens(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	types := make(map[string]bool)
	for _, row := range rows {
		types[row.TokenType] = true
		assert.Equal(t, "docker_registry:inspect:corp/api-gateway", row.Context)
	}
	assert.True(t, types["db_credential"])
	assert.True(t, types["api_token"])
}

func TestDockerRegistryInspectNamedImage(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "docker_registry", map[string]any{
		"action": "inspect", "image_name": "corp/worker:v1.8.2",
	}, sessionID)

	assert.Contains(t, result.Output, `"repository": "corp/worker"`)
	assert.Contains(t, result.Output, `"tag": "v1.8.2"`)
}

func TestDockerRegistryPull(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "docker_registry", map[string]any{
		"action": "pull", "image_name": "corp/web-frontend:latest",
	}, sessionID)

	assert.Contains(t, result.Output, "Pulling from registry.corp.internal:5000/corp/web-frontend:latest")
	assert.Contains(t, result.Output, "Pull complete")
	assert.Contains(t, result.Output, "Downloaded newer image")
}

func TestDockerRegistryPullDefaultImage(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "docker_registry",
		map[string]any{"action": "pull"}, sessionID)

	assert.Contains(t, result.Output, "corp/api-gateway:latest")
}

func TestDockerRegistryUnknownAction(t *testing.T) {
	env := newTestEnv(t)
	sim := NewDockerRegistrySimulator(env.newSink())
	sess := newTestSession(t)

	result := sim.Simulate(context.Background(), map[string]any{"action": "push"}, sess)

	assert.True(t, result.IsError)
	assert.Equal(t, "Error: unknown action 'push'. Use: list, inspect, pull", result.Output)
}

func TestSplitImageRef(t *testing.T) {
	tests := []struct {
		ref  string
		name string
		tag  string
	}{
		{"corp/api-gateway:latest", "corp/api-gateway", "latest"},
		{"corp/worker", "corp/worker", "latest"},
		{"corp/worker:v1.8.2", "corp/worker", "v1.8.2"},
		{"corp/worker:", "corp/worker", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			name, tag := splitImageRef(tt.ref)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.tag, tag)
		})
	}
}
