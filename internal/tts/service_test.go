package tts_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-relay/internal/core"
	"github.com/book-expert/tts-relay/internal/gradio"
	"github.com/book-expert/tts-relay/internal/tts"
	"github.com/book-expert/tts-relay/internal/tts/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fallbackReference = "https://github.com/Dremer404/AUDIO/raw/refs/heads/main/anta.wav"

// fakePredictor records the last call and returns a canned result.
type fakePredictor struct {
	outputs     []any
	err         error
	gotAPIName  string
	gotData     []any
	gotDeadline bool
}

func (f *fakePredictor) Predict(ctx context.Context, apiName string, data ...any) ([]any, error) {
	f.gotAPIName = apiName
	f.gotData = data
	_, f.gotDeadline = ctx.Deadline()

	return f.outputs, f.err
}

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "tts-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func newTestService(
	t *testing.T,
	predictor tts.Predictor,
	baseURL string,
	convention gradio.ParamConvention,
) *tts.Service {
	t.Helper()

	downloader, err := tts.NewDownloader(baseURL, "", 5*time.Second)
	require.NoError(t, err)

	return tts.NewService(
		tts.NewInvoker(predictor, "/predict", convention, 5*time.Second),
		tts.NewNormalizer(baseURL+"/gradio_api/file="),
		downloader,
		text.NewPreparer(100),
		tts.ServiceConfig{
			DefaultReferenceURL: fallbackReference,
			Runtime:             tts.Runtime{TokenPresent: true, Authenticated: true, Convention: convention},
		},
		createTestLogger(t),
	)
}

func TestService_Synthesize_FallbackReference(t *testing.T) {
	t.Parallel()

	predictor := &fakePredictor{outputs: []any{"/tmp/gradio/abc.wav"}}
	service := newTestService(t, predictor, testBase, gradio.LegacyURLParam)

	result, err := service.Synthesize(context.Background(), core.SynthesisRequest{Text: "Naka nga def"})
	require.NoError(t, err)

	assert.Equal(t, core.StatusSuccess, result.Status)
	assert.Equal(t, testBase+"/gradio_api/file=/tmp/gradio/abc.wav", result.AudioURL)
	assert.Equal(t, "/download?url="+url.QueryEscape(result.AudioURL), result.DownloadURL)
	assert.Equal(t, "Naka nga def", result.Text)
	assert.Equal(t, fallbackReference, result.AudioReference)
	assert.True(t, result.Authenticated)

	assert.Equal(t, "/predict", predictor.gotAPIName)
	assert.Equal(t, []any{"Naka nga def", fallbackReference}, predictor.gotData)
	assert.True(t, predictor.gotDeadline, "remote call must carry a deadline")
}

func TestService_Synthesize_HandleConvention(t *testing.T) {
	t.Parallel()

	const customReference = "https://example.org/voices/awa.wav"

	predictor := &fakePredictor{outputs: []any{map[string]any{"path": "/tmp/gradio/out.wav"}}}
	service := newTestService(t, predictor, testBase, gradio.HandleRefParam)

	result, err := service.Synthesize(context.Background(), core.SynthesisRequest{
		Text:              "Jërëjëf",
		ReferenceAudioURL: customReference,
	})
	require.NoError(t, err)

	assert.Equal(t, customReference, result.AudioReference)
	require.Len(t, predictor.gotData, 2)

	handle, ok := predictor.gotData[1].(gradio.FileData)
	require.True(t, ok, "reference must be sent as a file handle")
	assert.Equal(t, customReference, handle.Path)
	assert.Equal(t, "awa.wav", handle.OrigName)
	assert.Equal(t, tts.Runtime{TokenPresent: true, Authenticated: true, Convention: gradio.HandleRefParam},
		service.Runtime())
}

func TestService_Synthesize_Errors(t *testing.T) {
	t.Parallel()

	quotaErr := &gradio.RemoteError{Kind: gradio.KindQuota, Message: "GPU quota exceeded"}

	tests := []struct {
		name      string
		predictor *fakePredictor
		text      string
		wantErr   error
	}{
		{name: "empty text", predictor: &fakePredictor{}, text: "   ", wantErr: text.ErrTextEmpty},
		{name: "remote failure", predictor: &fakePredictor{err: quotaErr}, text: "Naka nga def", wantErr: gradio.ErrRemoteCall},
		{name: "no outputs", predictor: &fakePredictor{outputs: []any{}}, text: "Naka nga def", wantErr: tts.ErrResultUnintelligible},
		{name: "null output", predictor: &fakePredictor{outputs: []any{nil}}, text: "Naka nga def", wantErr: tts.ErrResultUnintelligible},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			service := newTestService(t, testCase.predictor, testBase, gradio.LegacyURLParam)

			_, err := service.Synthesize(context.Background(), core.SynthesisRequest{Text: testCase.text})
			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestService_Synthesize_RemoteErrorKeepsKind(t *testing.T) {
	t.Parallel()

	predictor := &fakePredictor{err: &gradio.RemoteError{Kind: gradio.KindQuota, Message: "GPU quota exceeded"}}
	service := newTestService(t, predictor, testBase, gradio.LegacyURLParam)

	_, err := service.Synthesize(context.Background(), core.SynthesisRequest{Text: "Naka nga def"})

	var remoteErr *gradio.RemoteError

	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, gradio.KindQuota, remoteErr.Kind)
}

func TestService_SynthesizeAudio(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gradio_api/file=/tmp/gradio/abc.wav" {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte(testAudio))
	}))
	t.Cleanup(server.Close)

	predictor := &fakePredictor{outputs: []any{"/tmp/gradio/abc.wav"}}
	service := newTestService(t, predictor, server.URL, gradio.HandleRefParam)

	result, audio, err := service.SynthesizeAudio(context.Background(), core.SynthesisRequest{Text: "Naka nga def"})
	require.NoError(t, err)

	assert.Equal(t, server.URL+"/gradio_api/file=/tmp/gradio/abc.wav", result.AudioURL)
	assert.Equal(t, []byte(testAudio), audio)
}

func TestService_SynthesizeAudio_ForeignResultRejected(t *testing.T) {
	t.Parallel()

	predictor := &fakePredictor{outputs: []any{"https://elsewhere.example.org/abc.wav"}}
	service := newTestService(t, predictor, testBase, gradio.HandleRefParam)

	_, _, err := service.SynthesizeAudio(context.Background(), core.SynthesisRequest{Text: "Naka nga def"})
	require.ErrorIs(t, err, tts.ErrOriginRejected)
}
