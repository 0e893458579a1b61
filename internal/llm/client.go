// Package llm provides the language-model client interface and the
// provider implementations studymate supports. Providers are deliberately
// thin: one completion per call, bounded by the caller's context, no
// conversation state of their own.
package llm

import (
	"context"
	"errors"
)

// Client defines the minimal interface the classifiers and pipelines use
// to call an LLM.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// TokenHandler receives incremental completion text. Handlers must be
// fast; they are called on the stream-reading goroutine.
type TokenHandler func(token string)

// StreamingClient is implemented by providers that can emit tokens as
// they arrive. The full completion is still returned at the end; streaming
// is an optimization, never a correctness requirement.
type StreamingClient interface {
	Client
	CompleteStream(ctx context.Context, systemPrompt, userPrompt string, onToken TokenHandler) (string, error)
}

// ErrNoCompletion indicates the provider answered but produced no usable
// completion text.
var ErrNoCompletion = errors.New("no completion returned")

// ErrSchema indicates structured (JSON) model output failed validation.
var ErrSchema = errors.New("structured output failed validation")
