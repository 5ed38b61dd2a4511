// Package letta implements the memory.Store interface against a Letta
// server's block API. One block per user holds what the agent remembers
// about that user; attaching the block folds it into the agent's core
// memory for the duration of a conversation turn.
package letta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parley-voice/parley/pkg/memory"
)

const (
	defaultBaseURL = "http://localhost:8283"
	defaultTimeout = 10 * time.Second
)

// Compile-time interface assertion.
var _ memory.Store = (*Store)(nil)

// Option is a functional option for configuring the Letta Store.
type Option func(*Store)

// WithBaseURL overrides the default Letta server URL.
func WithBaseURL(u string) Option {
	return func(s *Store) {
		s.baseURL = strings.TrimRight(u, "/")
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(s *Store) {
		s.token = token
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		s.client = c
	}
}

// Store implements memory.Store against the Letta REST API.
type Store struct {
	baseURL string
	token   string
	client  *http.Client
}

// New creates a new Letta block Store.
func New(opts ...Option) *Store {
	s := &Store{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ---- wire types ----

type block struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// GetOrCreateBlock implements memory.Store. It looks the block up by its
// canonical label and creates an empty one when the lookup comes back empty.
func (s *Store) GetOrCreateBlock(ctx context.Context, agentID, userID string) (memory.Block, error) {
	label := memory.BlockLabel(agentID, userID)

	existing, err := s.findBlock(ctx, label)
	if err != nil {
		return memory.Block{}, err
	}
	if existing != nil {
		return memory.Block{ID: existing.ID, Label: existing.Label, Value: existing.Value}, nil
	}

	created, err := s.createBlock(ctx, label)
	if err != nil {
		return memory.Block{}, err
	}
	return memory.Block{ID: created.ID, Label: created.Label, Value: created.Value}, nil
}

// Attach implements memory.Store. A 409 (already attached) is not an error.
func (s *Store) Attach(ctx context.Context, agentID, blockID string) error {
	url := fmt.Sprintf("%s/v1/agents/%s/core-memory/blocks/attach/%s", s.baseURL, agentID, blockID)
	status, err := s.patch(ctx, url)
	if err != nil {
		return fmt.Errorf("letta: attach block %s: %w", blockID, err)
	}
	if status != http.StatusOK && status != http.StatusConflict {
		return fmt.Errorf("letta: attach block %s: server returned %d", blockID, status)
	}
	return nil
}

// Detach implements memory.Store. A 404 (not attached) is not an error.
func (s *Store) Detach(ctx context.Context, agentID, blockID string) error {
	url := fmt.Sprintf("%s/v1/agents/%s/core-memory/blocks/detach/%s", s.baseURL, agentID, blockID)
	status, err := s.patch(ctx, url)
	if err != nil {
		return fmt.Errorf("letta: detach block %s: %w", blockID, err)
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return fmt.Errorf("letta: detach block %s: server returned %d", blockID, status)
	}
	return nil
}

// findBlock returns the block with the given label, or nil when none exists.
func (s *Store) findBlock(ctx context.Context, label string) (*block, error) {
	u := fmt.Sprintf("%s/v1/blocks?label=%s", s.baseURL, url.QueryEscape(label))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("letta: create request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("letta: list blocks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("letta: list blocks: server returned %d", resp.StatusCode)
	}

	var blocks []block
	if err := json.NewDecoder(resp.Body).Decode(&blocks); err != nil {
		return nil, fmt.Errorf("letta: decode block list: %w", err)
	}
	for i := range blocks {
		if blocks[i].Label == label {
			return &blocks[i], nil
		}
	}
	return nil, nil
}

// createBlock creates an empty block with the given label.
func (s *Store) createBlock(ctx context.Context, label string) (*block, error) {
	payload, err := json.Marshal(block{Label: label, Value: ""})
	if err != nil {
		return nil, fmt.Errorf("letta: marshal block: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/blocks", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("letta: create request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("letta: create block: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("letta: create block: server returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var created block
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("letta: decode created block: %w", err)
	}
	if created.ID == "" {
		return nil, errors.New("letta: created block has no id")
	}
	return &created, nil
}

// patch issues a bodyless PATCH and returns the status code.
func (s *Store) patch(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, nil)
	if err != nil {
		return 0, err
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

func (s *Store) setHeaders(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}
