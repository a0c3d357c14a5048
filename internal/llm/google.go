package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/coral-mesh/pipelinescope/internal/config"
)

// GoogleProvider implements the Provider interface for Google AI (Gemini).
type GoogleProvider struct {
	client *genai.Client
	model  string
}

// NewGoogleProvider creates a new Google AI provider.
func NewGoogleProvider(ctx context.Context, apiKey string, modelName string, opts ...option.ClientOption) (*GoogleProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Google AI API key is required") // nolint: staticcheck
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google AI client: %w", err)
	}

	return &GoogleProvider{
		client: client,
		model:  modelName,
	}, nil
}

// Name returns the provider name.
func (p *GoogleProvider) Name() string {
	return "google"
}

// Generate sends a request to Google AI and returns the response.
func (p *GoogleProvider) Generate(ctx context.Context, req GenerateRequest, streamCallback StreamCallback) (*GenerateResponse, error) {
	model := p.client.GenerativeModel(p.model)

	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}

	history, current := splitHistory(req.Messages)
	chat := model.StartChat()
	chat.History = history

	if req.Stream && streamCallback != nil {
		iter := chat.SendMessageStream(ctx, current...)
		var full strings.Builder
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("stream error: %w", err)
			}
			for _, chunk := range textParts(resp) {
				full.WriteString(chunk)
				if err := streamCallback(chunk); err != nil {
					return nil, fmt.Errorf("stream callback error: %w", err)
				}
			}
		}
		return &GenerateResponse{Content: full.String(), FinishReason: "stop"}, nil
	}

	resp, err := chat.SendMessage(ctx, current...)
	if err != nil {
		return nil, fmt.Errorf("generate error: %w", err)
	}
	return &GenerateResponse{
		Content:      strings.Join(textParts(resp), ""),
		FinishReason: "stop",
	}, nil
}

// splitHistory converts messages to Gemini contents. The last message is the one
// being sent; everything before it becomes chat history.
func splitHistory(messages []Message) ([]*genai.Content, []genai.Part) {
	var history []*genai.Content
	var current []genai.Part

	for i, msg := range messages {
		role := "user"
		if msg.Role == "assistant" || msg.Role == "model" {
			role = "model"
		}
		parts := []genai.Part{genai.Text(msg.Content)}
		if i == len(messages)-1 {
			current = parts
			continue
		}
		history = append(history, &genai.Content{Role: role, Parts: parts})
	}
	return history, current
}

func textParts(resp *genai.GenerateContentResponse) []string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var out []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out = append(out, string(txt))
		}
	}
	return out
}

// Close closes the Google AI client.
func (p *GoogleProvider) Close() error {
	return p.client.Close()
}

func init() {
	Register(ProviderMetadata{
		Name:          "google",
		DisplayName:   "Google AI (Gemini)",
		DefaultEnvVar: "GOOGLE_API_KEY",
	}, func(ctx context.Context, modelID string, _ config.AdvisorConfig) (Provider, error) {
		apiKey, err := resolveAPIKey("google", "GOOGLE_API_KEY", false)
		if err != nil {
			return nil, err
		}
		return NewGoogleProvider(ctx, apiKey, modelID)
	})
}
