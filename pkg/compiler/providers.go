package compiler

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smilemakc/mbflow/pkg/engine"
	"github.com/smilemakc/mbflow/pkg/models"
)

// ChatMessage is one role/content pair of a rendered Prompt/CodeGen
// template.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest carries a Prompt/CodeGen cell's rendered messages plus its
// configuration onto an LLMClient call.
type ChatRequest struct {
	Provider string
	Messages []ChatMessage
	Config   models.PromptConfig
}

// LLMClient is the provider boundary a Prompt/CodeGen cell executes
// against. Kept narrow so the compiler package never imports a concrete
// SDK type outside this file.
type LLMClient interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// EmbeddingClient is the provider boundary an Embedding cell executes
// against.
type EmbeddingClient interface {
	Embed(ctx context.Context, provider, model, text string) ([]float64, error)
}

// OpenAIClient adapts github.com/sashabaranov/go-openai to both the
// LLMClient and EmbeddingClient boundaries: a single shared SDK client,
// with chat-completion requests built from role/content pairs.
type OpenAIClient struct {
	client *openai.Client
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClient(apiKey)}
}

func (c *OpenAIClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	cfg := req.Config
	creq := openai.ChatCompletionRequest{
		Model:            modelOrDefault(cfg.Model),
		Messages:         messages,
		Temperature:      float32(cfg.Temperature),
		TopP:             float32(cfg.TopP),
		MaxTokens:        cfg.MaxTokens,
		FrequencyPenalty: float32(cfg.FrequencyPenalty),
		PresencePenalty:  float32(cfg.PresencePenalty),
		Stop:             cfg.Stop,
	}
	if cfg.Seed != nil {
		creq.Seed = cfg.Seed
	}
	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return "", &engine.ProviderError{Provider: req.Provider, Message: err.Error(), Retryable: true}
	}
	if len(resp.Choices) == 0 {
		return "", &engine.ProviderError{Provider: req.Provider, Message: "provider returned no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Embed(ctx context.Context, provider, model, text string) ([]float64, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, &engine.ProviderError{Provider: provider, Message: err.Error(), Retryable: true}
	}
	if len(resp.Data) == 0 {
		return nil, &engine.ProviderError{Provider: provider, Message: "provider returned no embeddings"}
	}
	out := make([]float64, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		out[i] = float64(f)
	}
	return out, nil
}

func modelOrDefault(model string) string {
	if model == "" {
		return openai.GPT4o
	}
	return model
}
