package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ignite/cdp-messenger/internal/messaging"
	"github.com/ignite/cdp-messenger/internal/pkg/logger"
)

const (
	defaultBedrockModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	anthropicVersion    = "bedrock-2023-05-31"
)

// ModelInvoker is the subset of *bedrockruntime.Client used by BedrockAnalyzer.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type bedrockMessage struct {
	Role    string         `json:"role"`
	Content []bedrockBlock `json:"content"`
}

type bedrockBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content    []bedrockBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// BedrockAnalyzer asks an Anthropic model on AWS Bedrock for the plan.
type BedrockAnalyzer struct {
	client  ModelInvoker
	modelID string
}

// NewBedrockAnalyzer creates an analyzer. Build the client with
// bedrockruntime.NewFromConfig.
func NewBedrockAnalyzer(client ModelInvoker, modelID string) *BedrockAnalyzer {
	if modelID == "" {
		modelID = defaultBedrockModel
	}
	return &BedrockAnalyzer{client: client, modelID: modelID}
}

func (a *BedrockAnalyzer) Analyze(ctx context.Context, query string) (*messaging.AnalysisResult, error) {
	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		System:           SystemPrompt(),
		Messages: []bedrockMessage{{
			Role:    "user",
			Content: []bedrockBlock{{Type: "text", Text: query}},
		}},
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal bedrock request: %w", err)
	}

	out, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(a.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke model: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode bedrock response: %v", ErrInvalidResponse, err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	logger.Debug("bedrock analysis complete", "model", a.modelID,
		"input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)
	return ParseResult(text.String())
}
