// Package cartesia provides a Cartesia-backed TTS provider using the Cartesia
// bytes API. It implements the tts.Provider interface and is the default
// primary synthesis engine.
package cartesia

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/parley-voice/parley/pkg/provider/tts"
)

const (
	bytesEndpoint  = "https://api.cartesia.ai/tts/bytes"
	apiVersion     = "2024-06-10"
	defaultModel   = "sonic-2"
	defaultRate    = 48000
	defaultTimeout = 30 * time.Second
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Cartesia Provider.
type Option func(*Provider)

// WithModel sets the Cartesia model ID (e.g., "sonic-2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithVoice sets the default voice ID used when a request does not specify one.
func WithVoice(voiceID string) Option {
	return func(p *Provider) {
		p.voice = voiceID
	}
}

// WithLanguage sets the synthesis language code (e.g., "en"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the HTTP client, primarily for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithBaseURL overrides the API endpoint, primarily for tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.endpoint = u + "/tts/bytes"
	}
}

// Provider implements tts.Provider backed by the Cartesia REST API.
type Provider struct {
	apiKey     string
	model      string
	voice      string
	language   string
	endpoint   string
	httpClient *http.Client
}

// New creates a new Cartesia Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("cartesia: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   "en",
		endpoint:   bytesEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "cartesia" }

// request is the JSON body for POST /tts/bytes.
type request struct {
	ModelID      string       `json:"model_id"`
	Transcript   string       `json:"transcript"`
	Voice        voiceSpec    `json:"voice"`
	OutputFormat outputFormat `json:"output_format"`
	Language     string       `json:"language,omitempty"`
	Speed        float64      `json:"speed,omitempty"`
}

type voiceSpec struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type outputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// Synthesize converts text into raw PCM via the Cartesia bytes endpoint.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Synthesis, error) {
	if text == "" {
		return nil, errors.New("cartesia: text must not be empty")
	}
	voice := opts.Voice
	if voice == "" {
		voice = p.voice
	}
	if voice == "" {
		return nil, errors.New("cartesia: no voice configured")
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = defaultRate
	}

	requestedAt := time.Now()

	body, err := json.Marshal(request{
		ModelID:    p.model,
		Transcript: text,
		Voice:      voiceSpec{Mode: "id", ID: voice},
		OutputFormat: outputFormat{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: rate,
		},
		Language: p.language,
		Speed:    opts.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("cartesia: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cartesia: create request: %w", err)
	}
	req.Header.Set("X-API-Key", p.apiKey)
	req.Header.Set("Cartesia-Version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cartesia: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("cartesia: server returned HTTP %d: %s", resp.StatusCode, detail)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cartesia: read audio: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("cartesia: server returned no audio")
	}

	return &tts.Synthesis{
		Data:        pcm,
		SampleRate:  rate,
		Channels:    1,
		Text:        text,
		Voice:       voice,
		RequestedAt: requestedAt,
	}, nil
}
