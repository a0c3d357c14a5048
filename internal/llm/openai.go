package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/coral-mesh/pipelinescope/internal/config"
)

// OpenAIProvider implements the Provider interface for OpenAI-compatible APIs.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI provider. If baseURL is empty, the
// public OpenAI API is used. A non-empty baseURL allows targeting any
// OpenAI-compatible endpoint.
func NewOpenAIProvider(apiKey string, modelName string, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("OpenAI API key is required") // nolint: staticcheck
	}

	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &OpenAIProvider{
		client: &client,
		model:  modelName,
	}, nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate sends a request to OpenAI and returns the response.
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest, streamCallback StreamCallback) (*GenerateResponse, error) {
	var messages []openai.ChatCompletionMessageParamUnion

	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case "user":
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.ChatCompletionMessageParamOfAssistant[string](msg.Content))
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}

	if req.Stream && streamCallback != nil {
		return p.generateStreaming(ctx, params, streamCallback)
	}
	return p.generateNonStreaming(ctx, params)
}

func (p *OpenAIProvider) generateNonStreaming(ctx context.Context, params openai.ChatCompletionNewParams) (*GenerateResponse, error) {
	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("generate error: %w", err)
	}

	if len(completion.Choices) == 0 {
		return &GenerateResponse{FinishReason: "stop"}, nil
	}

	choice := completion.Choices[0]
	return &GenerateResponse{
		Content:      choice.Message.Content,
		FinishReason: finishReason(choice.FinishReason),
	}, nil
}

func (p *OpenAIProvider) generateStreaming(ctx context.Context, params openai.ChatCompletionNewParams, streamCallback StreamCallback) (*GenerateResponse, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if err := streamCallback(delta); err != nil {
					return nil, fmt.Errorf("stream callback error: %w", err)
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("stream error: %w", err)
	}

	if len(acc.Choices) == 0 {
		return &GenerateResponse{FinishReason: "stop"}, nil
	}

	choice := acc.Choices[0]
	return &GenerateResponse{
		Content:      choice.Message.Content,
		FinishReason: finishReason(choice.FinishReason),
	}, nil
}

func finishReason(r string) string {
	if r == "" {
		return "stop"
	}
	return r
}

func init() {
	Register(ProviderMetadata{
		Name:          "openai",
		DisplayName:   "OpenAI",
		DefaultEnvVar: "OPENAI_API_KEY",
	}, func(_ context.Context, modelID string, cfg config.AdvisorConfig) (Provider, error) {
		// Local OpenAI-compatible servers usually run without a key.
		apiKey, err := resolveAPIKey("openai", "OPENAI_API_KEY", cfg.BaseURL != "")
		if err != nil {
			return nil, err
		}
		return NewOpenAIProvider(apiKey, modelID, cfg.BaseURL)
	})
}
