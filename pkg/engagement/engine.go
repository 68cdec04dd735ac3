// Package engagement decides how deeply the honeypot plays along with an
// attacker. It scores sessions into escalation levels from their discovery
// progress and occasionally seasons tool output with transient errors (to
// feel like real infrastructure) or breadcrumbs (to bait the next step).
package engagement

import (
	"math/rand/v2"
	"sync"

	"github.com/trapline-sec/trapline/pkg/models"
)

// Escalation scoring thresholds. Each satisfied factor adds one level.
const (
	minHosts        = 2
	minFiles        = 2
	minCredentials  = 1
	minInteractions = 10
)

// Error injection only starts once a session is clearly engaged, and stays
// rare enough not to frustrate.
const (
	errorInjectionMinInteractions = 5
	errorInjectionProbability     = 0.10
	breadcrumbProbability         = 0.30
)

// breadcrumbsByLevel maps escalation levels to the hints dangled at that
// depth of engagement. Low levels get vague nudges, high levels get
// specific lures.
var breadcrumbsByLevel = [][]string{
	{
		"Hint: Internal network range is 10.0.0.0/16",
		"Note: Default SSH port is open on most internal hosts",
	},
	{
		"Breadcrumb: Configuration files are typically at /app/config.yaml",
		"Breadcrumb: The .env file contains database credentials",
		"Breadcrumb: Internal DNS resolves *.corp.internal",
		"Breadcrumb: Jump server available at 10.0.0.5",
	},
	{
		"Breadcrumb: SQL injection detected in /api/users endpoint",
		"Breadcrumb: Admin panel at /admin uses default credentials from config.yaml",
		"Breadcrumb: AWS credentials stored in /home/deploy/.aws/credentials",
		"Breadcrumb: Backup script runs as root via cron at 3 AM",
		"Breadcrumb: PostgreSQL accepts connections from any internal host",
	},
	{
		"Breadcrumb: Production database backup at s3://corp-internal-backups/db/",
		"Breadcrumb: Deploy keys in internal_tools.deploy_keys table",
		"Breadcrumb: Root SSH key stored in /root/.ssh/id_rsa (passwordless)",
		"Breadcrumb: Kubernetes API at https://k8s.corp.internal:6443 (no auth)",
	},
}

// transientErrors imitate the flakiness of real internal tooling.
var transientErrors = []string{
	"Connection timed out. Retrying...",
	"Error: ECONNRESET - peer reset connection. Please retry.",
	"503 Service Temporarily Unavailable",
	"Warning: Rate limit approaching (90/100 requests per minute)",
}

// Engine computes escalation levels and enriches simulator output.
// Safe for concurrent use.
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates an Engine with its own randomness source.
func NewEngine() *Engine {
	return &Engine{
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// ComputeEscalation scores a session from its discovery progress: one level
// each for enough hosts, enough files, any credentials, and sustained
// interaction, capped at models.MaxEscalationLevel.
func (e *Engine) ComputeEscalation(s *models.SessionContext) int {
	score := 0
	if len(s.Hosts()) >= minHosts {
		score++
	}
	if len(s.Files()) >= minFiles {
		score++
	}
	if len(s.Credentials()) >= minCredentials {
		score++
	}
	if s.InteractionCount() >= minInteractions {
		score++
	}
	return min(score, models.MaxEscalationLevel)
}

// ShouldInjectError decides whether this response gets a fake transient
// error. Sessions with fewer than five interactions are never disturbed.
func (e *Engine) ShouldInjectError(s *models.SessionContext) bool {
	if s.InteractionCount() < errorInjectionMinInteractions {
		return false
	}
	return e.float64() < errorInjectionProbability
}

// Breadcrumb picks a random hint appropriate to the escalation level.
// Levels above the table are clamped to the deepest tier.
func (e *Engine) Breadcrumb(level int) string {
	if level < 0 {
		level = 0
	}
	if level >= len(breadcrumbsByLevel) {
		level = len(breadcrumbsByLevel) - 1
	}
	crumbs := breadcrumbsByLevel[level]
	return crumbs[e.intN(len(crumbs))]
}

// TransientError picks a random fake infrastructure error.
func (e *Engine) TransientError() string {
	return transientErrors[e.intN(len(transientErrors))]
}

// EnrichOutput post-processes simulator output for a session: either a
// transient error is prepended, or (sometimes) a breadcrumb for the current
// escalation level is appended, or the output passes through untouched.
func (e *Engine) EnrichOutput(output string, s *models.SessionContext) string {
	if e.ShouldInjectError(s) {
		return e.TransientError() + "\n\n" + output
	}
	if e.float64() < breadcrumbProbability {
		return output + "\n\n# " + e.Breadcrumb(s.EscalationLevel())
	}
	return output
}

func (e *Engine) float64() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

func (e *Engine) intN(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.IntN(n)
}
