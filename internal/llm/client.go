package llm

import "context"

// Client is the interface the orchestrators depend on. The concrete
// model is fixed at construction time; per-request variation is limited
// to messages, tools, and temperature.
type Client interface {
	// Chat sends one chat completion request and returns the response.
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
