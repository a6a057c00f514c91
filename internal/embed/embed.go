// Package embed wraps the configured embedding providers behind a single
// fixed-dimension service with bounded retries.
package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinquery/internal/config"
	"clinquery/internal/providers"
	"clinquery/internal/util"
)

type Service struct {
	mgr     *providers.Manager
	dim     int
	model   string
	retries int
	backoff time.Duration
	timeout time.Duration
}

func NewService(cfg config.Config, mgr *providers.Manager) *Service {
	return &Service{
		mgr:     mgr,
		dim:     cfg.EmbedDim,
		model:   cfg.EmbedModel,
		retries: cfg.EmbedRetries,
		backoff: time.Duration(cfg.RetryBackoffMillis) * time.Millisecond,
		timeout: time.Duration(cfg.EmbedTimeoutSecs) * time.Second,
	}
}

func (s *Service) Dimension() int { return s.dim }
func (s *Service) Model() string  { return s.model }

// Embed returns a vector of exactly Dimension() components. Blank input gets
// the zero vector so sparse records do not abort batch pipelines. A vector of
// the wrong length from a provider is a configuration fault and fails fast;
// transient provider failures are retried with backoff across the preferred
// provider order before surfacing ErrEmbeddingUnavailable.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, s.dim), nil
	}

	var lastErr error
	disabled := make(map[int]bool)
	attempts := s.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		for _, idx := range s.mgr.PreferredEmbedOrder() {
			if disabled[idx] {
				continue
			}
			p, ref := s.mgr.EmbedProviderByIndex(idx)
			vec, err := s.embedOnce(ctx, p, text)
			if err == nil {
				return vec, nil
			}
			lastErr = fmt.Errorf("provider %s: %w", ref.Name, err)
			if errors.Is(err, util.ErrDimensionMismatch) {
				return nil, lastErr
			}
			// Quota and permanent failures will not clear within this
			// request's retry window.
			switch providers.ClassifyError(err) {
			case providers.ErrorQuota, providers.ErrorPermanent:
				disabled[idx] = true
			}
		}
		if len(disabled) == len(s.mgr.PreferredEmbedOrder()) {
			break
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", util.ErrEmbeddingUnavailable, ctx.Err())
		case <-time.After(s.backoff * time.Duration(attempt+1)):
		}
	}
	return nil, fmt.Errorf("%w: %v", util.ErrEmbeddingUnavailable, lastErr)
}

func (s *Service) embedOnce(ctx context.Context, p providers.EmbeddingProvider, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	vecs, _, err := p.Embed(callCtx, providers.EmbedRequest{
		Operation: "embed",
		Inputs:    []string{text},
		Dimension: s.dim,
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("provider returned %d vectors for one input", len(vecs))
	}
	if len(vecs[0]) != s.dim {
		return nil, fmt.Errorf("%w: provider returned %d, index requires %d", util.ErrDimensionMismatch, len(vecs[0]), s.dim)
	}
	return vecs[0], nil
}
