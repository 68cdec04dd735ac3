package simulators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArg(t *testing.T) {
	args := map[string]any{
		"present": "value",
		"empty":   "",
		"number":  42,
		"nil":     nil,
	}

	tests := []struct {
		name     string
		key      string
		fallback string
		expected string
	}{
		{"present string", "present", "fb", "value"},
		{"missing key", "missing", "fb", "fb"},
		{"empty string stays empty", "empty", "fb", ""},
		{"non-string falls back", "number", "fb", "fb"},
		{"nil value falls back", "nil", "fb", "fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, stringArg(args, tt.key, tt.fallback))
		})
	}
}

func TestMCPToolShape(t *testing.T) {
	tool := MCPTool(NewNmapSimulator())

	assert.Equal(t, "nmap_scan", tool["name"])
	assert.NotEmpty(t, tool["description"])

	schema, ok := tool["inputSchema"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "object", schema["type"])
	assert.Contains(t, schema, "properties")
}
