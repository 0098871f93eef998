package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const defaultGeminiEmbeddingModel = "text-embedding-004"

// geminiClient implements Client on top of the Google GenAI SDK.
type geminiClient struct {
	client     *genai.Client
	embedModel string
}

// NewGemini creates a Gemini adapter.
func NewGemini(ctx context.Context, apiKey, embedModel string) (Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if embedModel == "" {
		embedModel = defaultGeminiEmbeddingModel
	}
	return &geminiClient{client: client, embedModel: embedModel}, nil
}

func (g *geminiClient) Close() error {
	return g.client.Close()
}

func (g *geminiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	em := g.client.EmbeddingModel(g.embedModel)

	results := make([][]float32, 0, len(texts))
	for _, text := range texts {
		res, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, wrapGeminiError("embed", err)
		}
		if res.Embedding == nil || len(res.Embedding.Values) == 0 {
			return nil, fmt.Errorf("gemini embed: no embedding data received")
		}
		results = append(results, res.Embedding.Values)
	}
	return results, nil
}

func (g *geminiClient) Complete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("gemini complete: empty message list")
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != RoleUser {
		return nil, fmt.Errorf("gemini complete: last message must be from the user")
	}

	model := g.client.GenerativeModel(req.Model)

	// System messages become the model-level system instruction; the rest of
	// the prefix becomes chat history.
	var system []string
	var history []*genai.Content
	for _, m := range req.Messages[:len(req.Messages)-1] {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))},
		}
	}

	temp := float32(req.Temperature)
	maxTokens := int32(req.MaxTokens)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     &temp,
		MaxOutputTokens: &maxTokens,
	}

	session := model.StartChat()
	session.History = history

	ch := make(chan StreamChunk, 64)

	if !req.Stream {
		go func() {
			defer close(ch)
			resp, err := session.SendMessage(ctx, genai.Text(last.Content))
			if err != nil {
				ch <- StreamChunk{Error: wrapGeminiError("complete", err)}
				return
			}
			if text := responseText(resp); text != "" {
				ch <- StreamChunk{Text: text}
			}
		}()
		return ch, nil
	}

	iter := session.SendMessageStream(ctx, genai.Text(last.Content))
	go func() {
		defer close(ch)
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				ch <- StreamChunk{Error: wrapGeminiError("stream", err)}
				return
			}
			if text := responseText(resp); text != "" {
				ch <- StreamChunk{Text: text}
			}
		}
	}()

	return ch, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

func wrapGeminiError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("gemini %s: %w", op, ErrUnauthorized)
	}
	return fmt.Errorf("gemini %s: %w", op, err)
}
