package embedding

import "context"

// Encoder turns text into a fixed-length embedding vector. Implementations
// must be deterministic for a fixed model version and must accept empty or
// very short inputs.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
