// Package letta provides a conversational-agent provider backed by a Letta
// server. Letta agents are stateful: the server keeps the full conversation
// history and memory, so each request carries only the new user messages.
package letta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/parley-voice/parley/pkg/provider/agent"
)

const (
	defaultBaseURL = "http://localhost:8283"
	defaultTimeout = 30 * time.Second
)

// Compile-time interface assertion.
var _ agent.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Letta Provider.
type Option func(*Provider)

// WithBaseURL overrides the default Letta server URL.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithToken sets the bearer token sent with every request. Self-hosted
// Letta servers often run without authentication; Letta Cloud requires it.
func WithToken(token string) Option {
	return func(p *Provider) {
		p.token = token
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// Provider implements agent.Provider against the Letta REST API.
type Provider struct {
	baseURL string
	token   string
	client  *http.Client
}

// New creates a new Letta Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name implements agent.Provider.
func (p *Provider) Name() string { return "letta" }

// ---- wire types ----

type sendMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type sendRequest struct {
	Messages []sendMessage `json:"messages"`
}

// replyMessage covers the union of message shapes Letta returns. Only
// assistant messages carry the spoken reply; reasoning, tool call, and
// tool return messages are skipped.
type replyMessage struct {
	MessageType string `json:"message_type"`
	Content     string `json:"content"`
}

type sendResponse struct {
	Messages []replyMessage `json:"messages"`
}

// Respond implements agent.Provider. It posts the messages to the agent's
// messages endpoint and returns the content of the most recent assistant
// message in the response. A response containing no assistant message
// yields an empty string with a nil error.
func (p *Provider) Respond(ctx context.Context, agentID string, messages []agent.Message) (string, error) {
	if agentID == "" {
		return "", errors.New("letta: agentID must not be empty")
	}
	if len(messages) == 0 {
		return "", errors.New("letta: messages must not be empty")
	}

	reqBody := sendRequest{Messages: make([]sendMessage, 0, len(messages))}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, sendMessage{Role: m.Role, Content: m.Content})
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("letta: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/agents/%s/messages", p.baseURL, agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("letta: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("letta: send messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("letta: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("letta: decode response: %w", err)
	}

	return extractReply(result.Messages), nil
}

// extractReply returns the content of the last assistant message, or ""
// when the agent produced none.
func extractReply(messages []replyMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].MessageType == "assistant_message" {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}
