package embedder

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrProviderUnavailable is returned when the circuit breaker is open and the
// underlying provider is being given time to recover. Callers treat it like
// any other provider failure: degrade, do not abort.
var ErrProviderUnavailable = errors.New("embedding provider unavailable")

// ResilientConfig configures the circuit breaker and rate limiter wrapped
// around an embedding provider.
type ResilientConfig struct {
	// MaxFailures is the number of consecutive failures required to trip the
	// circuit. Default: 3.
	MaxFailures uint32

	// OpenTimeout is how long the circuit stays open before allowing test
	// requests. Default: 30 seconds.
	OpenTimeout time.Duration

	// RequestsPerSecond caps the request rate to the provider. Zero disables
	// rate limiting.
	RequestsPerSecond float64

	// Burst is the rate limiter burst size. Default: 1 when rate limiting is
	// enabled.
	Burst int
}

// Resilient wraps an embedding Provider with a circuit breaker and an
// optional rate limiter.
//
// A tripped breaker makes Embed/EmbedBatch fail fast with
// ErrProviderUnavailable instead of piling requests onto a struggling
// provider. From the engine's perspective this is indistinguishable from any
// other provider outage and triggers the usual fallback paths.
type Resilient struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewResilient wraps a provider with default breaker settings
// (3 consecutive failures trip the circuit, 30 second open window)
// and no rate limit.
func NewResilient(inner Provider) *Resilient {
	return NewResilientWithConfig(inner, ResilientConfig{})
}

// NewResilientWithConfig wraps a provider with custom breaker and limiter
// settings.
func NewResilientWithConfig(inner Provider, cfg ResilientConfig) *Resilient {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "embedder",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Resilient{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: limiter,
	}
}

// Embed converts a single text through the breaker and limiter.
func (r *Resilient) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, r.classify(err)
	}
	return result.([]float64), nil
}

// EmbedBatch converts a batch of texts through the breaker and limiter.
func (r *Resilient) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.inner.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, r.classify(err)
	}
	return result.([][]float64), nil
}

// Dimensions returns the wrapped provider's vector dimension.
func (r *Resilient) Dimensions() int {
	return r.inner.Dimensions()
}

// Close closes the wrapped provider.
func (r *Resilient) Close() error {
	return r.inner.Close()
}

func (r *Resilient) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

func (r *Resilient) classify(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrProviderUnavailable
	}
	return err
}
