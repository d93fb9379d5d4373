package tts_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/tts-relay/internal/gradio"
	"github.com/book-expert/tts-relay/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSpaceDown = errors.New("space is sleeping")

type fakeConnector struct {
	info  *gradio.SpaceInfo
	err   error
	calls int
}

func (f *fakeConnector) Connect(_ context.Context) (*gradio.SpaceInfo, error) {
	f.calls++

	return f.info, f.err
}

func TestResolveCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		convention string
		prefix     string
		connector  *fakeConnector
		want       tts.Capabilities
		wantCalls  int
	}{
		{
			name:       "full override skips probe",
			convention: "legacy",
			prefix:     "/gradio_api",
			connector:  &fakeConnector{},
			want:       tts.Capabilities{Convention: gradio.LegacyURLParam, APIPrefix: "/gradio_api"},
			wantCalls:  0,
		},
		{
			name:       "fixed convention still probes the prefix",
			convention: "handle",
			connector:  &fakeConnector{info: &gradio.SpaceInfo{Version: "4.44.0", APIPrefix: ""}},
			want:       tts.Capabilities{Convention: gradio.HandleRefParam, APIPrefix: ""},
			wantCalls:  1,
		},
		{
			name:       "auto with gradio 3",
			convention: "auto",
			connector:  &fakeConnector{info: &gradio.SpaceInfo{Version: "3.50.2"}},
			want:       tts.Capabilities{Convention: gradio.LegacyURLParam, APIPrefix: ""},
			wantCalls:  1,
		},
		{
			name:       "auto with gradio 5",
			convention: "auto",
			connector:  &fakeConnector{info: &gradio.SpaceInfo{Version: "5.9.1", APIPrefix: "/gradio_api"}},
			want:       tts.Capabilities{Convention: gradio.HandleRefParam, APIPrefix: "/gradio_api"},
			wantCalls:  1,
		},
		{
			name:       "configured prefix wins over the space",
			convention: "auto",
			prefix:     "/custom",
			connector:  &fakeConnector{info: &gradio.SpaceInfo{Version: "5.9.1", APIPrefix: "/gradio_api"}},
			want:       tts.Capabilities{Convention: gradio.HandleRefParam, APIPrefix: "/custom"},
			wantCalls:  1,
		},
		{
			name:       "unreachable space falls back",
			convention: "auto",
			connector:  &fakeConnector{err: errSpaceDown},
			want:       tts.Capabilities{Convention: tts.FallbackConvention, APIPrefix: tts.FallbackAPIPrefix},
			wantCalls:  1,
		},
		{
			name:       "unreachable space keeps fixed convention",
			convention: "legacy",
			connector:  &fakeConnector{err: errSpaceDown},
			want:       tts.Capabilities{Convention: gradio.LegacyURLParam, APIPrefix: tts.FallbackAPIPrefix},
			wantCalls:  1,
		},
		{
			name:       "missing version falls back",
			convention: "",
			connector:  &fakeConnector{info: &gradio.SpaceInfo{APIPrefix: "/gradio_api"}},
			want:       tts.Capabilities{Convention: tts.FallbackConvention, APIPrefix: "/gradio_api"},
			wantCalls:  1,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := tts.ResolveCapabilities(context.Background(), testCase.connector,
				testCase.convention, testCase.prefix, createTestLogger(t))
			require.NoError(t, err)
			assert.Equal(t, testCase.want, got)
			assert.Equal(t, testCase.wantCalls, testCase.connector.calls)
		})
	}
}

func TestResolveCapabilities_UnknownOverride(t *testing.T) {
	t.Parallel()

	_, err := tts.ResolveCapabilities(context.Background(), &fakeConnector{}, "sometimes", "", createTestLogger(t))
	require.ErrorIs(t, err, gradio.ErrUnknownConvention)
}

// A Gradio 4 Space mounts the call API and the file route at the root.
func TestResolveCapabilities_Gradio4SpaceWithoutPrefix(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /config", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"version": "4.44.0", "api_prefix": ""}`))
	})

	mux.HandleFunc("POST /call/predict", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"event_id": "evt-4"}`))
	})

	mux.HandleFunc("GET /call/predict/evt-4", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: complete\ndata: [\"/tmp/gradio/abc.wav\"]\n\n"))
	})

	space := httptest.NewServer(mux)
	t.Cleanup(space.Close)

	caps, err := tts.ResolveCapabilities(context.Background(), gradio.NewClient(space.URL, gradio.Options{}),
		"auto", "", createTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, tts.Capabilities{Convention: gradio.HandleRefParam, APIPrefix: ""}, caps)

	client := gradio.NewClient(space.URL, gradio.Options{APIPrefix: caps.APIPrefix})
	invoker := tts.NewInvoker(client, "/predict", caps.Convention, 5*time.Second)

	raw, err := invoker.Invoke(context.Background(), "Naka nga def", fallbackReference)
	require.NoError(t, err)

	normalized, err := tts.NewNormalizer(space.URL + caps.APIPrefix + "/file=").Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, space.URL+"/file=/tmp/gradio/abc.wav", normalized.URL)
}

func TestSpaceProbe(t *testing.T) {
	t.Parallel()

	ok := tts.NewSpaceProbe(&fakeConnector{info: &gradio.SpaceInfo{Version: "4.44.1"}}, time.Second)
	require.NoError(t, ok.Probe(context.Background()))

	down := tts.NewSpaceProbe(&fakeConnector{err: errSpaceDown}, time.Second)
	require.ErrorIs(t, down.Probe(context.Background()), errSpaceDown)
}
