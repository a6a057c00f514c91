package embed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"clinquery/internal/config"
	"clinquery/internal/providers"
	"clinquery/internal/util"
)

func testConfig() config.Config {
	cfg := config.Load()
	cfg.EmbedDim = 128
	cfg.EmbedProviders = "mock"
	cfg.EmbedRetries = 1
	cfg.RetryBackoffMillis = 1
	return cfg
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	mgr, err := providers.NewManager(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	return NewService(testConfig(), mgr)
}

func TestEmbedFixedDimensionAndDeterministic(t *testing.T) {
	s := newTestService(t)
	a, err := s.Embed(context.Background(), "metformin 500mg twice daily")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != s.Dimension() {
		t.Fatalf("got %d components, want %d", len(a), s.Dimension())
	}
	b, err := s.Embed(context.Background(), "metformin 500mg twice daily")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding differs at component %d", i)
		}
	}
}

func TestEmbedSelfSimilarityIsUnit(t *testing.T) {
	s := newTestService(t)
	v, err := s.Embed(context.Background(), "hemoglobin a1c 6.9 percent")
	if err != nil {
		t.Fatal(err)
	}
	var dot, norm float64
	for _, x := range v {
		dot += float64(x) * float64(x)
		norm += float64(x) * float64(x)
	}
	cos := dot / norm
	if cos < 0.999 {
		t.Fatalf("self cosine similarity %f < 0.999", cos)
	}
}

func TestEmbedBlankInputYieldsZeroVector(t *testing.T) {
	s := newTestService(t)
	v, err := s.Embed(context.Background(), "   \n\t ")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != s.Dimension() {
		t.Fatalf("got %d components, want %d", len(v), s.Dimension())
	}
	for i, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector, component %d = %f", i, x)
		}
	}
}

type failingProvider struct{ calls int }

func (f *failingProvider) Embed(ctx context.Context, req providers.EmbedRequest) ([][]float32, providers.ProviderInfo, error) {
	f.calls++
	return nil, providers.ProviderInfo{Name: "failing"}, fmt.Errorf("service temporarily unavailable")
}

func TestEmbedExhaustedRetriesSurfaceTypedError(t *testing.T) {
	cfg := testConfig()
	cfg.EmbedRetries = 2
	fp := &failingProvider{}
	s := &Service{mgr: managerWith(t, fp), dim: cfg.EmbedDim, retries: cfg.EmbedRetries, backoff: 1, timeout: 1e9}

	_, err := s.Embed(context.Background(), "anything")
	if !errors.Is(err, util.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if fp.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", fp.calls)
	}
}

func managerWith(t *testing.T, p providers.EmbeddingProvider) *providers.Manager {
	t.Helper()
	return providers.NewManagerWithEmbedProviders([]providers.NamedEmbedProvider{
		{Ref: providers.ProviderRef{Raw: "failing", Name: "failing"}, Provider: p},
	})
}
