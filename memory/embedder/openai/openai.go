// Package openai implements the Embedder port against the OpenAI
// embeddings API.
//
// It is the production swap for the local ONNX backend: same 384-or-more
// dimensional contract, no model files on disk, a network hop per embed.
// Calls are rate limited client-side so a burst of adds cannot trip the
// API's limits.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"golang.org/x/time/rate"

	"github.com/engram-dev/engram/memory"
)

// Options configure the embedder.
type Options struct {
	// Model is the embeddings model. Default: text-embedding-3-small.
	Model string

	// Dimensions requests reduced-dimension output where the model
	// supports it. Default: 1536 (text-embedding-3-small native size).
	Dimensions int

	// RequestsPerSecond caps embed calls. Default: 10.
	RequestsPerSecond float64
}

// Embedder calls the OpenAI embeddings endpoint.
type Embedder struct {
	client  *openai.Client
	limiter *rate.Limiter
	opts    Options
}

// New creates an embedder using ambient credentials (OPENAI_API_KEY).
func New(optFns ...func(o *Options)) *Embedder {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates an embedder from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Embedder {
	opts := Options{
		Model:             openai.EmbeddingModelTextEmbedding3Small,
		Dimensions:        1536,
		RequestsPerSecond: 10,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Embedder{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		opts:    opts,
	}
}

// Embed converts text to an embedding vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:      e.opts.Model,
		Dimensions: openai.Int(int64(e.opts.Dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embed: empty response")
	}

	raw := resp.Data[0].Embedding
	if len(raw) != e.opts.Dimensions {
		return nil, fmt.Errorf("%w: got %d dimensions, expected %d",
			memory.ErrUnavailable, len(raw), e.opts.Dimensions)
	}
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.opts.Dimensions
}
