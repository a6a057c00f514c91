package retrieval

import (
	"context"
	"fmt"

	"clinquery/internal/providers"
)

// Generator is the seam to the external answer-generation collaborator.
type Generator interface {
	Generate(ctx context.Context, question string, excerpts []string) (string, error)
}

// ProviderGenerator answers through the configured LLM providers, preferring
// real providers over the mock fallback.
type ProviderGenerator struct {
	mgr *providers.Manager
}

func NewProviderGenerator(mgr *providers.Manager) *ProviderGenerator {
	return &ProviderGenerator{mgr: mgr}
}

func (g *ProviderGenerator) Generate(ctx context.Context, question string, excerpts []string) (string, error) {
	var lastErr error
	for _, idx := range g.mgr.PreferredLLMOrder() {
		p, ref := g.mgr.LLMProviderByIndex(idx)
		resp, _, err := p.Generate(ctx, providers.GenerateRequest{
			Operation: "patient_answer",
			Prompt:    question,
			Context:   excerpts,
		})
		if err == nil {
			return resp.Text, nil
		}
		lastErr = fmt.Errorf("provider %s: %w", ref.Name, err)
	}
	return "", lastErr
}
