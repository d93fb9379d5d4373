// Package client is a Go client for the relay's HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/tts-relay/internal/core"
)

// API endpoints and paths.
const (
	apiSynthesize         = "/synthesize"
	apiSynthesizeDownload = "/synthesize-download"
	apiHealth             = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	headerAudioKey    = "X-Audio-Key"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

var (
	// ErrTextEmpty is returned before any request is sent for empty text.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrUnexpectedContentType indicates the relay did not return WAV audio.
	ErrUnexpectedContentType = errors.New("unexpected content type")
	// ErrEmptyAudio indicates the relay returned no audio bytes.
	ErrEmptyAudio = errors.New("received empty audio data")
)

// APIError is a non-200 response from the relay.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.StatusCode, e.Detail)
}

// Health is the relay's /health document.
type Health struct {
	Status        string `json:"status"`
	SpaceURL      string `json:"space_url"`
	Authenticated bool   `json:"authenticated"`
	TokenPresent  bool   `json:"token_present"`
}

// Audio is a downloaded WAV file and the archive key the relay assigned, if any.
type Audio struct {
	Data     []byte
	Filename string
	Key      string
}

// HTTPClient talks to a running relay.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPClient creates a client for the relay at baseURL. The timeout
// applies to every request and must cover the remote synthesis.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize asks the relay for a generated audio URL.
func (c *HTTPClient) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.SynthesisResult, error) {
	resp, err := c.post(ctx, apiSynthesize, req, contentTypeJSON)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result core.SynthesisResult

	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode synthesis result: %w", err)
	}

	return &result, nil
}

// SynthesizeAudio asks the relay to generate and return the WAV file.
func (c *HTTPClient) SynthesizeAudio(ctx context.Context, req core.SynthesisRequest) (*Audio, error) {
	resp, err := c.post(ctx, apiSynthesizeDownload, req, contentTypeWAV)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get(headerContentType))
	if mediaType != contentTypeWAV {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrUnexpectedContentType, contentTypeWAV, mediaType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	audio := &Audio{Data: data, Key: resp.Header.Get(headerAudioKey)}

	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if err == nil {
		audio.Filename = params["filename"]
	}

	return audio, nil
}

// HealthCheck verifies that the relay is running.
func (c *HTTPClient) HealthCheck(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check failed for relay at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var health Health

	err = json.NewDecoder(resp.Body).Decode(&health)
	if err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}

	return &health, nil
}

func (c *HTTPClient) post(
	ctx context.Context,
	path string,
	payload core.SynthesisRequest,
	accept string,
) (*http.Response, error) {
	if strings.TrimSpace(payload.Text) == "" {
		return nil, ErrTextEmpty
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAccept, accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to relay at %s: %w", c.baseURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		return nil, c.parseErrorResponse(resp)
	}

	return resp, nil
}

// parseErrorResponse decodes the relay's {"detail": ...} body, falling back
// to the raw body text.
func (c *HTTPClient) parseErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var errorResp struct {
		Detail string `json:"detail"`
	}

	err := json.Unmarshal(raw, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return &APIError{StatusCode: resp.StatusCode, Detail: errorResp.Detail}
	}

	return &APIError{StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(raw))}
}
