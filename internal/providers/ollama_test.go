package providers

import "testing"

func TestResolveOllamaEmbedModel_Default(t *testing.T) {
	t.Setenv("CLINQUERY_OLLAMA_EMBED_MODEL", "")
	got := resolveOllamaEmbedModel("")
	if got != "nomic-embed-text" {
		t.Fatalf("expected default nomic-embed-text, got %q", got)
	}
}

func TestResolveOllamaEmbedModel_DirectModelAlias(t *testing.T) {
	got := resolveOllamaEmbedModel("nomic-embed-text")
	if got != "nomic-embed-text" {
		t.Fatalf("expected direct model passthrough, got %q", got)
	}
}
