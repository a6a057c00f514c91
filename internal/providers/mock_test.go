package providers

import (
	"context"
	"testing"
)

func TestMockEmbedDeterministicAndSized(t *testing.T) {
	p := NewMockProvider(256)
	req := EmbedRequest{Operation: "ingest_embed", Inputs: []string{"glucose reading stable"}, Dimension: 256}
	a, _, err := p.Embed(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := p.Embed(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 1 || len(a[0]) != 256 {
		t.Fatalf("unexpected vector shape: %d x %d", len(a), len(a[0]))
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("embedding not deterministic at component %d", i)
		}
	}
}

func TestMockEmbedSharedTermsScoreHigher(t *testing.T) {
	p := NewMockProvider(256)
	vecs, _, err := p.Embed(context.Background(), EmbedRequest{
		Inputs:    []string{"glucose level", "glucose 84.8 mg/dL", "chest x-ray impression"},
		Dimension: 256,
	})
	if err != nil {
		t.Fatal(err)
	}
	related := dot(vecs[0], vecs[1])
	unrelated := dot(vecs[0], vecs[2])
	if related <= unrelated {
		t.Fatalf("expected shared-term similarity to dominate: related=%f unrelated=%f", related, unrelated)
	}
	if unrelated < 0 {
		t.Fatalf("mock similarities must be non-negative, got %f", unrelated)
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
