package embed

import (
	"context"
	"errors"
	"log/slog"

	rerrors "github.com/Aman-CERP/amanrecall/internal/errors"
)

// GuardedEmbedder puts a circuit breaker in front of an embedder. When the
// backend keeps failing, calls fail immediately with ErrCircuitOpen and
// searches fall back to lexical results without waiting on timeouts.
type GuardedEmbedder struct {
	inner   Embedder
	breaker *rerrors.CircuitBreaker
	logger  *slog.Logger
}

var _ Embedder = (*GuardedEmbedder)(nil)

// NewGuardedEmbedder wraps inner with breaker.
func NewGuardedEmbedder(inner Embedder, breaker *rerrors.CircuitBreaker, logger *slog.Logger) *GuardedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuardedEmbedder{inner: inner, breaker: breaker, logger: logger}
}

// Embed calls the inner embedder unless the circuit is open. Caller
// cancellation does not count as a backend failure.
func (g *GuardedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !g.breaker.Allow() {
		return nil, rerrors.New(rerrors.ErrCodeEmbeddingFailed, "embedding backend circuit open", rerrors.ErrCircuitOpen).
			WithDetail("breaker", g.breaker.Name())
	}

	vec, err := g.inner.Embed(ctx, text)
	switch {
	case err == nil:
		g.breaker.RecordSuccess()
	case errors.Is(err, context.Canceled):
		// The caller gave up; says nothing about the backend.
		g.breaker.Abandon()
	default:
		before := g.breaker.State()
		g.breaker.RecordFailure()
		if before != rerrors.StateOpen && g.breaker.State() == rerrors.StateOpen {
			g.logger.Warn("embedder_circuit_opened",
				slog.String("model", g.inner.ModelName()),
				slog.Int("failures", g.breaker.Failures()),
				slog.String("error", err.Error()))
		}
	}
	return vec, err
}

// State returns the breaker state.
func (g *GuardedEmbedder) State() rerrors.State {
	return g.breaker.State()
}

func (g *GuardedEmbedder) Dimensions() int                    { return g.inner.Dimensions() }
func (g *GuardedEmbedder) ModelName() string                  { return g.inner.ModelName() }
func (g *GuardedEmbedder) Available(ctx context.Context) bool { return g.inner.Available(ctx) }
func (g *GuardedEmbedder) Close() error                       { return g.inner.Close() }
