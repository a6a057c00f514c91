package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MockProvider is the offline default. Embeddings are a hashed bag-of-words:
// deterministic, non-negative components, so two texts sharing a term always
// score above unrelated ones and every cosine similarity is >= 0.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 1 {
		dim = 768
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	_ = ctx
	dim := req.Dimension
	if dim <= 1 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	text := "Mock response."
	if strings.Contains(strings.ToLower(req.Operation), "answer") {
		builder := strings.Builder{}
		builder.WriteString("Based on the retrieved record excerpts, the most relevant findings are listed below.")
		for i := range req.Context {
			builder.WriteString(" [R")
			builder.WriteString(strconv.Itoa(i + 1))
			builder.WriteString("]")
		}
		if len(req.Context) == 0 {
			builder.WriteString(" No matching record excerpts were available for this question.")
		}
		text = builder.String()
	}
	return GenerateResponse{Text: text}, ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}, nil
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	// Shared bias component keeps any two non-empty texts weakly similar.
	vec[0] = 1
	for _, tok := range strings.Fields(strings.ToLower(input)) {
		tok = strings.Trim(tok, ",.;:!?()[]{}\"'`")
		if tok == "" {
			continue
		}
		h := sha256.Sum256([]byte(tok))
		idx := 1 + int(binary.BigEndian.Uint32(h[:4])%uint32(dim-1))
		vec[idx]++
	}
	return normalize(vec)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
