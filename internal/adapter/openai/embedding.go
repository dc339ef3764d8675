package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/echo-agent/echochamber/internal/config"
	"github.com/echo-agent/echochamber/internal/domain/memory"
	"github.com/echo-agent/echochamber/internal/resilience"
)

// Embedder implements embedding.Service on the OpenAI Embeddings API.
// Vectors are requested at the store's fixed dimensionality.
type Embedder struct {
	client  openai.Client
	model   string
	breaker *resilience.Breaker
}

// NewEmbedder creates an Embedder from the OpenAI config.
func NewEmbedder(cfg config.OpenAI, opts ...option.RequestOption) *Embedder {
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	return &Embedder{
		client: openai.NewClient(opts...),
		model:  cfg.EmbeddingModel,
	}
}

// SetBreaker attaches a circuit breaker to all embedding calls.
func (e *Embedder) SetBreaker(b *resilience.Breaker) {
	e.breaker = b
}

// Embed returns the embedding vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	params := openai.EmbeddingNewParams{
		Model:      openai.EmbeddingModel(e.model),
		Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Dimensions: openai.Int(memory.EmbeddingDimensions),
	}

	var resp *openai.CreateEmbeddingResponse
	call := func() error {
		var err error
		resp, err = e.client.Embeddings.New(ctx, params)
		return err
	}

	var err error
	if e.breaker != nil {
		err = e.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embed: empty response")
	}
	return resp.Data[0].Embedding, nil
}
