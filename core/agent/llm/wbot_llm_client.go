// Package llm wraps the OpenAI API behind the embedding and chat ports.
package llm

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/countplus7/wbot-backend-sub000/pkg/apperr"
	"github.com/countplus7/wbot-backend-sub000/pkg/retry"
)

const (
	DefaultModel          = "gpt-4o-mini"
	DefaultEmbeddingModel = openai.AdaEmbeddingV2

	// embedBatchMax caps how many texts go into a single embeddings request;
	// larger batches are split and re-joined in input order.
	embedBatchMax = 100
)

// ClientConfig configures the OpenAI client.
type ClientConfig struct {
	APIKey         string
	BaseURL        string // overridable for tests
	Model          string
	EmbeddingModel openai.EmbeddingModel
	MaxTokens      int
	Temperature    float64

	// EmbedRetry governs retries for embedding reads, which are idempotent.
	// Chat completions are never retried.
	EmbedRetry retry.Policy
}

// Client implements the out.Embedder and out.ChatModel ports on OpenAI.
type Client struct {
	client         *openai.Client
	model          string
	embeddingModel openai.EmbeddingModel
	maxTokens      int
	temperature    float32
	embedRetry     retry.Policy
}

func NewClient(apiKey string) *Client {
	return NewClientWithConfig(ClientConfig{APIKey: apiKey})
}

func NewClientWithConfig(cfg ClientConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	embedRetry := cfg.EmbedRetry
	if embedRetry.MaxAttempts == 0 {
		embedRetry = retry.DefaultPolicy()
	}
	openaiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		openaiConfig.BaseURL = cfg.BaseURL
	}
	return &Client{
		client:         openai.NewClientWithConfig(openaiConfig),
		model:          model,
		embeddingModel: embeddingModel,
		maxTokens:      maxTokens,
		temperature:    float32(temperature),
		embedRetry:     embedRetry,
	}
}

// Complete sends a single user prompt and returns the raw completion text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", apperr.UpstreamUnavailable("openai", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}

	return resp.Choices[0].Message.Content, nil
}

// CompleteWithSystem sends a system prompt plus a user prompt.
func (c *Client) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", apperr.UpstreamUnavailable("openai", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}

	return resp.Choices[0].Message.Content, nil
}

// CompleteJSON forces a JSON-object response.
func (c *Client) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", apperr.UpstreamUnavailable("openai", err)
	}

	if len(resp.Choices) == 0 {
		return "{}", nil
	}

	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for one text. Embedding reads are
// idempotent, so transient upstream failures are retried.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.BadRequest("cannot embed empty text")
	}

	var embedding []float32
	err := retry.Do(ctx, c.embedRetry, func(ctx context.Context) error {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: c.embeddingModel,
			Input: []string{text},
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return apperr.Internal("embedding response carried no data")
		}
		embedding = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, apperr.UpstreamUnavailable("openai", err)
	}

	return embedding, nil
}

// EmbedBatch embeds several texts, preserving input order. Batches larger
// than the provider limit are split into sequential requests; a failure in
// any chunk fails the whole batch.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, apperr.BadRequest("cannot embed empty text")
		}
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchMax {
		end := start + embedBatchMax
		if end > len(texts) {
			end = len(texts)
		}

		chunk, err := c.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, chunk...)
	}

	return embeddings, nil
}

func (c *Client) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32
	err := retry.Do(ctx, c.embedRetry, func(ctx context.Context) error {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: c.embeddingModel,
			Input: texts,
		})
		if err != nil {
			return err
		}
		if len(resp.Data) != len(texts) {
			return apperr.Internal("embedding response length mismatch")
		}
		embeddings = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			embeddings[i] = data.Embedding
		}
		return nil
	})
	if err != nil {
		return nil, apperr.UpstreamUnavailable("openai", err)
	}

	return embeddings, nil
}
