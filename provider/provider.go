// Package provider merges similarity votes from external vision providers
// with the local perceptual engine into one consensus score per image pair.
package provider

import "context"

// Result is one provider's judgment of an image pair.
type Result struct {
	Similarity float64
	Confidence float64
}

// Provider is an external similarity source. Implementations are expected to
// be slow and unreliable: calls are rate limited, capped in concurrency and
// individually fault tolerant, so a failing provider only loses its own vote.
type Provider interface {
	Name() string
	Compare(ctx context.Context, pathA, pathB string) (Result, error)
}
