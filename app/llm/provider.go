// Package llm holds the chat providers and the article analyzer built on
// top of them.
package llm

import "context"

// Message is one turn of a chat conversation.
type Message struct {
	Role    string // system | user | assistant
	Content string
}

// Config holds per-provider generation parameters.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Provider abstracts one chat-completion backend.
type Provider interface {
	// Chat sends the conversation and returns the full response text.
	Chat(ctx context.Context, messages []Message) (string, error)
	// ChatStream sends the conversation and invokes fn for every response
	// chunk as it arrives. Returning an error from fn aborts the stream.
	ChatStream(ctx context.Context, messages []Message, fn func(chunk string) error) error
}
