package vecutil

import (
	"context"
)

// EmbedFunc converts free-form text into an embedding.
//
// Implementations can call any embedding provider (OpenAI, local model,
// other cloud APIs, etc.) as long as they return a slice of float32 values.
// The core store packages remain embedding-agnostic and only depend on the
// numeric vectors and their encoded BLOB representation.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)
