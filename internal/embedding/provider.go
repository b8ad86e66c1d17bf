// Package embedding implements the Embedding Provider capability of spec
// §4.3: text → fixed-dimension vector, with a caching decorator and two
// concrete adapters (deterministic null, HTTP/Ollama-shaped).
package embedding

import "context"

// Provider is the embedding capability interface. All vectors returned by
// a given Provider share the same length (Dimensions()); mixing dimensions
// across providers within one store is a fatal misconfiguration (§4.3/§4.4).
type Provider interface {
	Dimensions() int
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch MUST preserve input order in its output.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
