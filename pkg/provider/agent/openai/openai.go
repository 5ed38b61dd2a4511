// Package openai provides a conversational-agent provider backed by the
// OpenAI chat completions API. The backend is stateless, so callers pass
// the conversation history on every request; the agentID selects the
// system prompt persona when one is registered.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/parley-voice/parley/pkg/provider/agent"
)

const defaultModel = "gpt-4o-mini"

// Compile-time interface assertion.
var _ agent.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	model        string
	baseURL      string
	organization string
	timeout      time.Duration
	systemPrompt string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel overrides the default chat model.
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithSystemPrompt sets the persona instruction injected before the
// conversation history on every request.
func WithSystemPrompt(prompt string) Option {
	return func(c *config) {
		c.systemPrompt = prompt
	}
}

// Provider implements agent.Provider using the OpenAI API.
type Provider struct {
	client       oai.Client
	model        string
	systemPrompt string
}

// New constructs a new OpenAI agent Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        cfg.model,
		systemPrompt: cfg.systemPrompt,
	}, nil
}

// Name implements agent.Provider.
func (p *Provider) Name() string { return "openai" }

// Respond implements agent.Provider. The agentID is unused by this backend
// beyond request annotation; persona comes from the configured system prompt.
func (p *Provider) Respond(ctx context.Context, agentID string, messages []agent.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("openai: messages must not be empty")
	}

	params, err := p.buildParams(messages)
	if err != nil {
		return "", fmt.Errorf("openai: build params: %w", err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// buildParams converts the message history into OpenAI SDK params.
func (p *Provider) buildParams(messages []agent.Message) (oai.ChatCompletionNewParams, error) {
	var converted []oai.ChatCompletionMessageParamUnion

	if p.systemPrompt != "" {
		converted = append(converted, oai.SystemMessage(p.systemPrompt))
	}

	for _, m := range messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		converted = append(converted, msg)
	}

	return oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: converted,
	}, nil
}

// convertMessage converts an agent.Message to an OpenAI SDK message param.
func convertMessage(m agent.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case "system":
		return oai.SystemMessage(m.Content), nil
	case "user":
		return oai.UserMessage(m.Content), nil
	case "assistant":
		return oai.AssistantMessage(m.Content), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
	}
}
