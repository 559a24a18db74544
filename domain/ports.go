package domain

import "context"

// StreamResponse is one event from a streaming chat completion. The
// channel carrying these closes after a Done or Err event.
type StreamResponse struct {
	Content string
	Done    bool
	Err     error
}

// Provider is the capability interface for the remote inference provider.
type Provider interface {
	// ListModels fetches the provider's model catalog. Best effort: a bad
	// entry degrades, it does not fail the listing.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// ChatStream streams a chat completion as incremental text deltas.
	ChatStream(ctx context.Context, model string, messages []Message, options map[string]any) (<-chan StreamResponse, error)

	// PullModel downloads a model, relaying raw progress records. No
	// timeout applies; downloads can run for hours.
	PullModel(ctx context.Context, name string) (<-chan PullProgress, error)

	// DeleteModel removes a model from the provider.
	DeleteModel(ctx context.Context, name string) error
}
