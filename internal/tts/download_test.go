package tts_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/tts-relay/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAudio = "RIFF....WAVEfmt "

func newAudioServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		switch r.URL.Path {
		case "/gradio_api/file=/tmp/gradio/abc.wav":
			if r.Header.Get("Authorization") != "Bearer hf_token" {
				w.WriteHeader(http.StatusUnauthorized)

				return
			}

			w.Header().Set("Content-Type", "audio/wav")
			_, _ = w.Write([]byte(testAudio))
		case "/gradio_api/file=/tmp/gradio/empty.wav":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	return server
}

func TestDownloader_Fetch(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := newAudioServer(t, &hits)

	downloader, err := tts.NewDownloader(server.URL, "hf_token", 5*time.Second)
	require.NoError(t, err)

	audio, err := downloader.Fetch(context.Background(), server.URL+"/gradio_api/file=/tmp/gradio/abc.wav")
	require.NoError(t, err)
	assert.Equal(t, []byte(testAudio), audio)
}

func TestDownloader_Fetch_Failures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := newAudioServer(t, &hits)

	authorized, err := tts.NewDownloader(server.URL, "hf_token", 5*time.Second)
	require.NoError(t, err)

	anonymous, err := tts.NewDownloader(server.URL, "", 5*time.Second)
	require.NoError(t, err)

	tests := []struct {
		name       string
		downloader *tts.Downloader
		path       string
		wantStatus int
	}{
		{name: "missing file", downloader: authorized, path: "/gradio_api/file=/tmp/gradio/nope.wav", wantStatus: http.StatusNotFound},
		{name: "no credential", downloader: anonymous, path: "/gradio_api/file=/tmp/gradio/abc.wav", wantStatus: http.StatusUnauthorized},
		{name: "empty body", downloader: authorized, path: "/gradio_api/file=/tmp/gradio/empty.wav", wantStatus: http.StatusOK},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := testCase.downloader.Fetch(context.Background(), server.URL+testCase.path)
			require.ErrorIs(t, err, tts.ErrDownloadFailed)

			var downloadErr *tts.DownloadError

			require.ErrorAs(t, err, &downloadErr)
			assert.Equal(t, testCase.wantStatus, downloadErr.StatusCode)
		})
	}
}

func TestDownloader_RejectsForeignOrigins(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := newAudioServer(t, &hits)

	downloader, err := tts.NewDownloader(server.URL, "hf_token", 5*time.Second)
	require.NoError(t, err)

	foreign := []string{
		"https://evil.example.org/gradio_api/file=/tmp/gradio/abc.wav",
		server.URL + ".evil.example.org/abc.wav",
		"ftp://" + server.Listener.Addr().String() + "/abc.wav",
		"/gradio_api/file=/tmp/gradio/abc.wav",
		"not a url at all",
		"",
	}

	for _, rawURL := range foreign {
		_, err := downloader.Fetch(context.Background(), rawURL)
		require.ErrorIs(t, err, tts.ErrOriginRejected, "url %q", rawURL)
	}

	assert.Equal(t, int32(0), hits.Load(), "rejected urls must not reach the network")
}

func TestDownloader_CheckOrigin_DefaultPorts(t *testing.T) {
	t.Parallel()

	downloader, err := tts.NewDownloader("https://Space.HF.space", "", time.Second)
	require.NoError(t, err)

	_, err = downloader.CheckOrigin("https://space.hf.space:443/gradio_api/file=/tmp/gradio/a.wav")
	require.NoError(t, err)

	_, err = downloader.CheckOrigin("http://space.hf.space/gradio_api/file=/tmp/gradio/a.wav")
	require.ErrorIs(t, err, tts.ErrOriginRejected)

	_, err = downloader.CheckOrigin("https://space.hf.space:8443/a.wav")
	require.ErrorIs(t, err, tts.ErrOriginRejected)
}

func TestNewDownloader_InvalidBase(t *testing.T) {
	t.Parallel()

	_, err := tts.NewDownloader("space.hf.space", "", time.Second)
	require.Error(t, err)
}
