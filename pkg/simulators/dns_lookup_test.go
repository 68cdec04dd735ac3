package simulators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDNSLookupARecord(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)
	ctx := context.Background()

	result := env.registry.Dispatch(ctx, "dns_lookup", map[string]any{
		"domain": "web-frontend-01.corp.internal", "query_type": "A",
	}, sessionID)

	assert.Contains(t, result.Output, "10.0.1.10")
	assert.Contains(t, result.Output, "NOERROR")
	assert.False(t, result.IsError)

	sess, err := env.sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.Contains(t, sess.Hosts(), "10.0.1.10")
}

func TestDNSLookupMXRecord(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "dns_lookup", map[string]any{
		"domain": "corp.internal", "query_type": "MX",
	}, sessionID)

	assert.Contains(t, result.Output, "mail.corp.internal")
	assert.False(t, result.IsError)
}

func TestDNSLookupSRVRecord(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "dns_lookup", map[string]any{
		"domain": "corp.internal", "query_type": "SRV",
	}, sessionID)

	assert.Contains(t, result.Output, "_kerberos")
	assert.Contains(t, result.Output, "_ldap")
	assert.Contains(t, result.Output, "dc01.corp.internal")
}

func TestDNSLookupTXTRecord(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "dns_lookup", map[string]any{
		"domain": "corp.internal", "query_type": "TXT",
	}, sessionID)

	assert.Contains(t, result.Output, "spf1")
	assert.Contains(t, result.Output, "DKIM1")
}

func TestDNSLookupNXDOMAIN(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)

	result := env.registry.Dispatch(context.Background(), "dns_lookup", map[string]any{
		"domain": "nonexistent.example.com", "query_type": "A",
	}, sessionID)

	assert.Contains(t, result.Output, "NXDOMAIN")
	assert.False(t, result.IsError)
	assert.Equal(t, 1, result.EscalationDelta)
}

func TestDNSLookupDefaultQueryType(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)
	ctx := context.Background()

	result := env.registry.Dispatch(ctx, "dns_lookup", map[string]any{
		"domain": "db-primary-01.corp.internal",
	}, sessionID)
	assert.Contains(t, result.Output, "10.0.1.30")

	sess, err := env.sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.Contains(t, sess.Hosts(), "10.0.1.30")
}

func TestDNSLookupTracksMultipleHosts(t *testing.T) {
	env := newTestEnv(t)
	sessionID := env.newSession(t)
	ctx := context.Background()

	env.registry.Dispatch(ctx, "dns_lookup", map[string]any{"domain": "web-frontend-01.corp.internal"}, sessionID)
	env.registry.Dispatch(ctx, "dns_lookup", map[string]any{"domain": "api-gateway-01.corp.internal"}, sessionID)

	sess, err := env.sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.Contains(t, sess.Hosts(), "10.0.1.10")
	assert.Contains(t, sess.Hosts(), "10.0.1.20")
}

func TestDNSLookupQueryTypeNormalized(t *testing.T) {
	sim := NewDNSLookupSimulator()
	sess := newTestSession(t)

	result := sim.Simulate(context.Background(), map[string]any{
		"domain": "corp.internal", "query_type": "mx",
	}, sess)
	assert.Contains(t, result.Output, "mail.corp.internal")
}

func TestDNSLookupSuffixMatch(t *testing.T) {
	sim := NewDNSLookupSimulator()
	sess := newTestSession(t)

	// Unknown names under the zone resolve against the apex entry.
	result := sim.Simulate(context.Background(), map[string]any{
		"domain": "jump.corp.internal", "query_type": "A",
	}, sess)
	assert.Contains(t, result.Output, "NOERROR")
	assert.Contains(t, result.Output, "10.0.1.1")

	vault := sim.Simulate(context.Background(), map[string]any{
		"domain": "vault.corp.internal", "query_type": "A",
	}, sess)
	assert.Contains(t, vault.Output, "10.0.5.10")
}

func TestDNSLookupNoRecordsOfType(t *testing.T) {
	sim := NewDNSLookupSimulator()
	sess := newTestSession(t)

	result := sim.Simulate(context.Background(), map[string]any{
		"domain": "web-frontend-01.corp.internal", "query_type": "MX",
	}, sess)
	assert.Contains(t, result.Output, ";; (no MX records found)")
}
