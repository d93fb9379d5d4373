package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	headerAuthorization = "Authorization"
	bearerPrefix        = "Bearer "
	maxErrorBodyBytes   = 1024
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Downloader fetches generated audio, but only from the configured Space origin.
type Downloader struct {
	httpClient *http.Client
	origin     string
	token      string
}

// NewDownloader creates a Downloader restricted to baseURL's origin. The
// token, when non-empty, is sent as a bearer credential.
func NewDownloader(baseURL, token string, timeout time.Duration) (*Downloader, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse space base url %q: %w", baseURL, err)
	}

	origin, ok := originOf(parsed)
	if !ok {
		return nil, fmt.Errorf("space base url %q has no origin", baseURL)
	}

	return &Downloader{
		httpClient: &http.Client{Timeout: timeout},
		origin:     origin,
		token:      token,
	}, nil
}

// CheckOrigin parses rawURL and rejects it unless it shares the Space origin.
func (d *Downloader) CheckOrigin(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOriginRejected, err)
	}

	origin, ok := originOf(parsed)
	if !ok || origin != d.origin {
		return nil, fmt.Errorf("%w: %q", ErrOriginRejected, rawURL)
	}

	return parsed, nil
}

// Fetch downloads rawURL in a single bounded request.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := d.CheckOrigin(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	if d.token != "" {
		req.Header.Set(headerAuthorization, bearerPrefix+d.token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, StatusCode: 0, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return nil, &DownloadError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(resp.Status + " " + string(body))),
		}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, StatusCode: 0, Err: err}
	}

	if len(audio) == 0 {
		return nil, &DownloadError{URL: rawURL, StatusCode: resp.StatusCode, Err: ErrEmptyAudio}
	}

	return audio, nil
}

// originOf returns scheme://host:port with default ports made explicit.
func originOf(parsed *url.URL) (string, bool) {
	scheme := strings.ToLower(parsed.Scheme)

	defaultPort, known := defaultPorts[scheme]
	if !known || parsed.Hostname() == "" {
		return "", false
	}

	port := parsed.Port()
	if port == "" {
		port = defaultPort
	}

	return scheme + "://" + strings.ToLower(parsed.Hostname()) + ":" + port, true
}
