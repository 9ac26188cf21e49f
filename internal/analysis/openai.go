package analysis

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/ignite/cdp-messenger/internal/messaging"
	"github.com/ignite/cdp-messenger/internal/pkg/logger"
)

const defaultOpenAIModel = "gpt-4o-mini"

// ChatCompleter is the subset of *openai.Client used by OpenAIAnalyzer.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIAnalyzer asks an OpenAI chat model for the targeting plan.
type OpenAIAnalyzer struct {
	client ChatCompleter
	model  string
}

// NewOpenAIAnalyzer creates an analyzer for apiKey. baseURL overrides the API
// endpoint when non-empty.
func NewOpenAIAnalyzer(apiKey, model, baseURL string) *OpenAIAnalyzer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewOpenAIAnalyzerWithClient(openai.NewClientWithConfig(cfg), model)
}

// NewOpenAIAnalyzerWithClient wraps an existing client.
func NewOpenAIAnalyzerWithClient(client ChatCompleter, model string) *OpenAIAnalyzer {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIAnalyzer{client: client, model: model}
}

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, query string) (*messaging.AnalysisResult, error) {
	req := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai returned no choices", ErrInvalidResponse)
	}
	logger.Debug("openai analysis complete", "model", a.model,
		"finish_reason", resp.Choices[0].FinishReason, "total_tokens", resp.Usage.TotalTokens)
	return ParseResult(resp.Choices[0].Message.Content)
}
