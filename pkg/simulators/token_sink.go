package simulators

import (
	"context"
	"log/slog"
	"time"

	"github.com/trapline-sec/trapline/pkg/database"
	"github.com/trapline-sec/trapline/pkg/metrics"
	"github.com/trapline-sec/trapline/pkg/models"
	"github.com/trapline-sec/trapline/pkg/tokens"
)

// TokenSink mints fabricated credentials and records where they were
// planted. Simulators share one sink so the store dependency stays in one
// place.
type TokenSink struct {
	gen     *tokens.Generator
	store   *database.Store
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewTokenSink creates a TokenSink. metrics may be nil.
func NewTokenSink(gen *tokens.Generator, store *database.Store, m *metrics.Metrics) *TokenSink {
	return &TokenSink{
		gen:     gen,
		store:   store,
		metrics: m,
		log:     slog.Default().With("component", "token_sink"),
	}
}

// Mint fabricates a credential, records the deployment, and tags the
// session with "tokenType:tokenContext". Recording failures are logged and
// swallowed: the fabricated value still goes into the output so the fiction
// stays coherent.
func (s *TokenSink) Mint(ctx context.Context, sess *models.SessionContext, tokenType, tokenContext string) string {
	value := s.Place(ctx, sess, tokenType, tokenContext)
	sess.AddCredential(tokenType, tokenContext)
	return value
}

// Place fabricates and records a credential without tagging the session.
// Callers that want a credential tag different from the deployment context
// add it themselves.
func (s *TokenSink) Place(ctx context.Context, sess *models.SessionContext, tokenType, tokenContext string) string {
	value, err := s.gen.Generate(tokenType, sess.ID())
	if err != nil {
		s.log.Error("Failed to generate honey token",
			"token_type", tokenType,
			"session_id", sess.ID(),
			"error", err)
		return ""
	}

	_, err = s.store.LogHoneyToken(ctx, models.HoneyToken{
		SessionID:  sess.ID(),
		TokenType:  tokenType,
		TokenValue: value,
		Context:    tokenContext,
		DeployedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.Error("Failed to record honey token deployment",
			"token_type", tokenType,
			"session_id", sess.ID(),
			"context", tokenContext,
			"error", err)
	}

	s.metrics.RecordTokenMinted(tokenType)
	return value
}
