// Package llm provides LLM provider abstractions for the optimization advisor.
package llm

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/coral-mesh/pipelinescope/internal/config"
)

// Message represents a chat message.
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// GenerateRequest contains the parameters for LLM generation.
type GenerateRequest struct {
	Messages     []Message
	Stream       bool   // Whether to stream the response
	SystemPrompt string // System instructions prepended to the conversation
}

// GenerateResponse contains the LLM's response.
type GenerateResponse struct {
	Content      string // Text content of the response
	FinishReason string // Why generation stopped: "stop", "length", etc.
}

// StreamCallback is called for each chunk when streaming.
type StreamCallback func(chunk string) error

// Provider defines the interface that LLM providers must implement.
type Provider interface {
	// Name returns the provider name (e.g., "google", "openai").
	Name() string

	// Generate sends a request to the LLM and returns the response.
	// If streaming is enabled, it calls the callback for each chunk.
	Generate(ctx context.Context, req GenerateRequest, streamCallback StreamCallback) (*GenerateResponse, error)
}

// ProviderMetadata contains metadata about an LLM provider.
type ProviderMetadata struct {
	Name          string // Provider identifier (e.g., "google", "openai")
	DisplayName   string // Human-readable name (e.g., "Google AI")
	DefaultEnvVar string // API key env var (e.g., "GOOGLE_API_KEY")
	// KeyOptional allows a missing API key, e.g. for local OpenAI-compatible servers.
	KeyOptional bool
}

// ProviderFactory creates a Provider instance.
type ProviderFactory func(ctx context.Context, modelID string, cfg config.AdvisorConfig) (Provider, error)

// Registry manages available LLM providers.
type Registry struct {
	providers map[string]*registeredProvider
	mu        sync.RWMutex
}

type registeredProvider struct {
	metadata ProviderMetadata
	factory  ProviderFactory
}

var globalRegistry = NewRegistry()

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*registeredProvider),
	}
}

// Register registers a provider with the global registry.
func Register(metadata ProviderMetadata, factory ProviderFactory) {
	globalRegistry.RegisterProvider(metadata, factory)
}

// RegisterProvider registers a provider.
func (r *Registry) RegisterProvider(metadata ProviderMetadata, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[metadata.Name] = &registeredProvider{
		metadata: metadata,
		factory:  factory,
	}
}

// Get returns the global registry.
func Get() *Registry {
	return globalRegistry
}

// ParseModel splits "<provider>:<model>" into its parts.
func ParseModel(value string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(value, ":")
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("invalid model %q: expected <provider>:<model>", value)
	}
	return provider, model, nil
}

// New creates the provider selected by cfg.Model.
func (r *Registry) New(ctx context.Context, cfg config.AdvisorConfig) (Provider, error) {
	providerName, modelID, err := ParseModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	p, exists := r.providers[providerName]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unsupported provider: %s (available: %s)", providerName, strings.Join(r.Names(), ", "))
	}

	return p.factory(ctx, modelID, cfg)
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status reports whether a provider has an API key available.
func (r *Registry) Status(providerName string) string {
	r.mu.RLock()
	p, exists := r.providers[providerName]
	r.mu.RUnlock()

	switch {
	case !exists:
		return "unknown"
	case p.metadata.KeyOptional:
		return "available"
	case os.Getenv(p.metadata.DefaultEnvVar) != "":
		return "configured"
	default:
		return "not-configured"
	}
}

// resolveAPIKey reads the provider's API key from its environment variable.
func resolveAPIKey(provider, envVar string, optional bool) (string, error) {
	apiKey := os.Getenv(envVar)
	if apiKey == "" && !optional {
		return "", fmt.Errorf("%s API key not configured (set %s)", provider, envVar)
	}
	return apiKey, nil
}
