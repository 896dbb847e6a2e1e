package core

import "context"

// Backend produces text fragments for a prompt. Generate calls emit once per
// fragment, in production order, and returns when the stream is finished.
// A non-nil error from emit must abort generation.
type Backend interface {
	Ready(ctx context.Context) error
	Generate(ctx context.Context, prompt string, params GenerationParams, emit func(fragment string) error) error
}
