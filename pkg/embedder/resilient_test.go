package embedder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recollect-ai/recollect-go/pkg/embedder"
)

// flakyProvider fails the first failures calls, then succeeds.
type flakyProvider struct {
	failures int
	calls    int
}

func (p *flakyProvider) Embed(_ context.Context, _ string) ([]float64, error) {
	p.calls++
	if p.calls <= p.failures {
		return nil, errors.New("upstream timeout")
	}
	return []float64{1, 0, 0}, nil
}

func (p *flakyProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *flakyProvider) Dimensions() int { return 3 }
func (p *flakyProvider) Close() error    { return nil }

func TestResilientPassThrough(t *testing.T) {
	r := embedder.NewResilient(&flakyProvider{})

	vec, err := r.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, vec)
	assert.Equal(t, 3, r.Dimensions())
}

func TestResilientTripsAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyProvider{failures: 100}
	r := embedder.NewResilientWithConfig(inner, embedder.ResilientConfig{
		MaxFailures: 3,
		OpenTimeout: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.Embed(ctx, "x")
		require.Error(t, err)
		assert.NotErrorIs(t, err, embedder.ErrProviderUnavailable)
	}

	// Circuit is open now: the provider is no longer called.
	callsBefore := inner.calls
	_, err := r.Embed(ctx, "x")
	assert.ErrorIs(t, err, embedder.ErrProviderUnavailable)
	assert.Equal(t, callsBefore, inner.calls)

	_, err = r.EmbedBatch(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, embedder.ErrProviderUnavailable)
}

func TestResilientRecoversAfterOpenTimeout(t *testing.T) {
	inner := &flakyProvider{failures: 3}
	r := embedder.NewResilientWithConfig(inner, embedder.ResilientConfig{
		MaxFailures: 3,
		OpenTimeout: 20 * time.Millisecond,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.Embed(ctx, "x")
		require.Error(t, err)
	}
	_, err := r.Embed(ctx, "x")
	require.ErrorIs(t, err, embedder.ErrProviderUnavailable)

	time.Sleep(30 * time.Millisecond)

	vec, err := r.Embed(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, vec)
}

func TestResilientRateLimiterHonorsContext(t *testing.T) {
	r := embedder.NewResilientWithConfig(&flakyProvider{}, embedder.ResilientConfig{
		RequestsPerSecond: 0.001,
		Burst:             1,
	})

	ctx := context.Background()
	_, err := r.Embed(ctx, "first")
	require.NoError(t, err)

	// Second call would have to wait ~1000s; a short deadline cancels it.
	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = r.Embed(ctx, "second")
	assert.Error(t, err)
}
