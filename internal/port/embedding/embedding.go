// Package embedding defines the port interface for text embedding.
package embedding

import "context"

// Service embeds text into a fixed-length vector for semantic search.
type Service interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
