package discovery

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGenAIModel is used when GenAIConfig.Model is empty.
const DefaultGenAIModel = "gemini-embedding-001"

// GenAIConfig configures the Gemini embedder.
type GenAIConfig struct {
	APIKey     string
	Model      string
	Dimensions int
	// BaseURL overrides the Gemini API endpoint.
	BaseURL string
}

// GenAIEmbedder generates embeddings with Google's Gemini API.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
	dims   int
}

// NewGenAIEmbedder creates a Gemini-backed embedder.
func NewGenAIEmbedder(ctx context.Context, cfg GenAIConfig) (*GenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("genai embedder: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGenAIModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 768
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("genai embedder: creating client: %w", err)
	}
	return &GenAIEmbedder{client: client, model: cfg.Model, dims: cfg.Dimensions}, nil
}

// Embed implements Embedder.
func (g *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch implements Embedder.
func (g *GenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	dims := int32(g.dims)
	result, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		TaskType:             "SEMANTIC_SIMILARITY",
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("genai embed: got %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}
	out := make([][]float32, len(result.Embeddings))
	for i, e := range result.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

// Dimensions implements Embedder.
func (g *GenAIEmbedder) Dimensions() int { return g.dims }

// Name implements Embedder.
func (g *GenAIEmbedder) Name() string { return "genai:" + g.model }
