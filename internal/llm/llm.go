// Package llm wraps the upstream model providers behind a single
// provider-neutral client interface covering chat completion and
// text embedding.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider name constants.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ErrUnauthorized marks credential failures (HTTP 401 class) so callers can
// distinguish them from generic upstream errors.
var ErrUnauthorized = errors.New("invalid or expired credential")

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in the ordered prompt sent upstream.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest holds the parameters for a completion call. Messages must
// be ordered: system message(s) first, then history, then the current turn.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Stream      bool
}

// StreamChunk is a single text fragment or error delivered during a
// completion. Non-streaming calls deliver exactly one fragment.
type StreamChunk struct {
	Text  string
	Error error
}

// Client is the common interface all provider adapters implement.
type Client interface {
	// Complete sends the prompt and delivers the response as an ordered
	// sequence of fragments, terminated by channel close.
	Complete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// Embed generates embeddings for a batch of texts, order-preserving.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Close releases any provider resources.
	Close() error
}

// Options selects and configures a provider adapter.
type Options struct {
	Provider       string
	APIKey         string
	BaseURL        string
	EmbeddingModel string
}

// New constructs the Client for the configured provider.
func New(opts Options) (Client, error) {
	switch opts.Provider {
	case ProviderOpenAI, "":
		return NewOpenAI(opts.APIKey, opts.BaseURL, opts.EmbeddingModel), nil
	case ProviderGemini:
		return NewGemini(context.Background(), opts.APIKey, opts.EmbeddingModel)
	default:
		return nil, fmt.Errorf("unknown provider %q; valid providers: openai, gemini", opts.Provider)
	}
}

// Collect drains a completion stream into a single reply string. The first
// fragment error aborts collection.
func Collect(ch <-chan StreamChunk) (string, error) {
	var b strings.Builder
	for chunk := range ch {
		if chunk.Error != nil {
			return "", chunk.Error
		}
		b.WriteString(chunk.Text)
	}
	return b.String(), nil
}
