package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/tts-relay/internal/client"
	"github.com/book-expert/tts-relay/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAudioData = "RIFF....WAVEfmt "

func newRelay(t *testing.T, handler http.HandlerFunc) *client.HTTPClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return client.NewHTTPClient(server.URL+"/", 5*time.Second)
}

func TestHTTPClient_Synthesize(t *testing.T) {
	t.Parallel()

	httpClient := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/synthesize", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req core.SynthesisRequest

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Naka nga def", req.Text)
		assert.Equal(t, "https://example.org/awa.wav", req.ReferenceAudioURL)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(core.SynthesisResult{
			Status:   core.StatusSuccess,
			AudioURL: "https://space.hf.space/gradio_api/file=/tmp/gradio/abc.wav",
			Text:     req.Text,
		})
	})

	result, err := httpClient.Synthesize(context.Background(), core.SynthesisRequest{
		Text:              "Naka nga def",
		ReferenceAudioURL: "https://example.org/awa.wav",
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, result.Status)
	assert.Equal(t, "https://space.hf.space/gradio_api/file=/tmp/gradio/abc.wav", result.AudioURL)
}

func TestHTTPClient_SynthesizeAudio(t *testing.T) {
	t.Parallel()

	httpClient := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/synthesize-download", r.URL.Path)
		assert.Equal(t, "audio/wav", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("Content-Disposition", `attachment; filename="audio_Naka nga def.wav"`)
		w.Header().Set("X-Audio-Key", "abc.wav")
		_, _ = w.Write([]byte(testAudioData))
	})

	audio, err := httpClient.SynthesizeAudio(context.Background(), core.SynthesisRequest{Text: "Naka nga def"})
	require.NoError(t, err)
	assert.Equal(t, []byte(testAudioData), audio.Data)
	assert.Equal(t, "audio_Naka nga def.wav", audio.Filename)
	assert.Equal(t, "abc.wav", audio.Key)
}

func TestHTTPClient_SynthesizeAudio_WrongContentType(t *testing.T) {
	t.Parallel()

	httpClient := newRelay(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	})

	_, err := httpClient.SynthesizeAudio(context.Background(), core.SynthesisRequest{Text: "hi"})
	require.ErrorIs(t, err, client.ErrUnexpectedContentType)
}

func TestHTTPClient_SynthesizeAudio_Empty(t *testing.T) {
	t.Parallel()

	httpClient := newRelay(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
	})

	_, err := httpClient.SynthesizeAudio(context.Background(), core.SynthesisRequest{Text: "hi"})
	require.ErrorIs(t, err, client.ErrEmptyAudio)
}

func TestHTTPClient_EmptyTextNeverSent(t *testing.T) {
	t.Parallel()

	called := false
	httpClient := newRelay(t, func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	})

	_, err := httpClient.Synthesize(context.Background(), core.SynthesisRequest{Text: "  "})
	require.ErrorIs(t, err, client.ErrTextEmpty)
	assert.False(t, called)
}

func TestHTTPClient_ErrorResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{name: "structured", status: http.StatusTooManyRequests, body: `{"detail":"GPU quota exceeded."}`, wantDetail: "GPU quota exceeded."},
		{name: "raw body", status: http.StatusBadGateway, body: "upstream down\n", wantDetail: "upstream down"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			httpClient := newRelay(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(testCase.status)
				_, _ = w.Write([]byte(testCase.body))
			})

			_, err := httpClient.Synthesize(context.Background(), core.SynthesisRequest{Text: "hi"})

			var apiErr *client.APIError

			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, testCase.status, apiErr.StatusCode)
			assert.Equal(t, testCase.wantDetail, apiErr.Detail)
		})
	}
}

func TestHTTPClient_HealthCheck(t *testing.T) {
	t.Parallel()

	httpClient := newRelay(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(client.Health{Status: "healthy", Authenticated: true, TokenPresent: true})
	})

	health, err := httpClient.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.Authenticated)
}

func TestHTTPClient_HealthCheck_Unreachable(t *testing.T) {
	t.Parallel()

	httpClient := client.NewHTTPClient("http://127.0.0.1:1", time.Second)

	_, err := httpClient.HealthCheck(context.Background())
	require.Error(t, err)
}
