package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/book-expert/tts-relay/internal/core"
	"github.com/book-expert/tts-relay/internal/tts"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Headers and content types.
const (
	headerContentType        = "Content-Type"
	headerContentDisposition = "Content-Disposition"
	headerContentLength      = "Content-Length"
	headerAudioKey           = "X-Audio-Key"
	contentTypeJSON          = "application/json"
	contentTypeWAV           = "audio/wav"
)

// Request parameters.
const (
	paramText      = "text"
	paramReference = "audio_reference_url"
	paramURL       = "url"
	paramKey       = "key"
)

const maxRequestBodyBytes = 64 * 1024

var (
	errMissingURL       = errors.New("query parameter 'url' is required")
	errInvalidReference = errors.New("audio_reference_url must be an absolute http or https URL")
	errArchiveDisabled  = errors.New("audio archive is not configured")
)

type descriptor struct {
	Message         string            `json:"message"`
	Version         string            `json:"version"`
	Status          string            `json:"status"`
	SpaceURL        string            `json:"space_url"`
	Authenticated   bool              `json:"authenticated"`
	TokenPresent    bool              `json:"token_present"`
	TokenValid      bool              `json:"token_valid"`
	Account         string            `json:"account,omitempty"`
	ParamConvention string            `json:"param_convention"`
	Endpoints       map[string]string `json:"endpoints"`
}

type healthResponse struct {
	Status        string `json:"status"`
	SpaceURL      string `json:"space_url"`
	Authenticated bool   `json:"authenticated"`
	TokenPresent  bool   `json:"token_present"`
}

type connectionResponse struct {
	Status        string `json:"status"`
	SpaceURL      string `json:"space_url"`
	Authenticated bool   `json:"authenticated"`
	Message       string `json:"message"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

var endpoints = map[string]string{
	"GET /":                     "Service information",
	"GET /health":               "Liveness and authentication status",
	"GET /test-space":           "Checks the connection to the remote space",
	"POST /synthesize":          "Generates audio from text and returns its URL",
	"POST /synthesize-download": "Generates audio from text and returns the WAV file",
	"GET /download?url=":        "Relays a WAV file hosted on the remote space",
	"GET /archive/{key}":        "Returns previously relayed audio when archiving is enabled",
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, descriptor{
		Message:         ServiceName,
		Version:         ServiceVersion,
		Status:          "operational",
		SpaceURL:        s.spaceURL,
		Authenticated:   s.runtime.Authenticated,
		TokenPresent:    s.runtime.TokenPresent,
		TokenValid:      s.runtime.Authenticated,
		Account:         s.runtime.Account,
		ParamConvention: s.runtime.Convention.String(),
		Endpoints:       endpoints,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "healthy",
		SpaceURL:      s.spaceURL,
		Authenticated: s.runtime.Authenticated,
		TokenPresent:  s.runtime.TokenPresent,
	})
}

func (s *Server) handleTestSpace(w http.ResponseWriter, r *http.Request) {
	s.log.Info("Testing connection to %s (authenticated: %t)", s.spaceURL, s.runtime.Authenticated)

	err := s.prober.Probe(r.Context())
	if err != nil {
		s.log.Error("Space connection failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("Unable to connect to the space: %v", err))

		return
	}

	message := "The space is reachable with your account"
	if !s.runtime.Authenticated {
		message = "The space is reachable (limited quota)"
	}

	writeJSON(w, http.StatusOK, connectionResponse{
		Status:        "connected",
		SpaceURL:      s.spaceURL,
		Authenticated: s.runtime.Authenticated,
		Message:       message,
	})
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	req, err := parseSynthesisRequest(r)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	result, err := s.synthesizer.Synthesize(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSynthesizeDownload(w http.ResponseWriter, r *http.Request) {
	req, err := parseSynthesisRequest(r)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	result, audio, err := s.synthesizer.SynthesizeAudio(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	key := s.archiveAudio(r, result.AudioURL, audio)
	writeAudio(w, tts.AttachmentName(result.Text), key, audio)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get(paramURL)
	if strings.TrimSpace(rawURL) == "" {
		s.fail(w, r, errMissingURL)

		return
	}

	audio, err := s.synthesizer.Download(r.Context(), rawURL)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	writeAudio(w, tts.DefaultAttachmentName, "", audio)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.fail(w, r, errArchiveDisabled)

		return
	}

	key := chi.URLParam(r, paramKey)

	audio, err := s.archive.Download(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	writeAudio(w, tts.SanitizeFilename(key), key, audio)
}

// archiveAudio stores the audio when an archive is configured. Archive
// failures do not fail the request; the audio is still returned.
func (s *Server) archiveAudio(r *http.Request, sourceURL string, audio []byte) string {
	if s.archive == nil {
		return ""
	}

	key, err := s.archive.Archive(r.Context(), sourceURL, audio)
	if err != nil {
		s.log.Warn("[%s] Failed to archive audio from %s: %v", middleware.GetReqID(r.Context()), sourceURL, err)

		return ""
	}

	s.log.Info("[%s] Archived audio as %s", middleware.GetReqID(r.Context()), key)

	return key
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := StatusFor(err)

	s.log.Error("[%s] %s %s failed with %d: %v", middleware.GetReqID(r.Context()), r.Method, r.URL.Path, status, err)
	writeError(w, status, detail)
}

// parseSynthesisRequest accepts query parameters and, for JSON requests, a
// body with the same field names. Query parameters win.
func parseSynthesisRequest(r *http.Request) (core.SynthesisRequest, error) {
	query := r.URL.Query()

	req := core.SynthesisRequest{
		Text:              query.Get(paramText),
		ReferenceAudioURL: query.Get(paramReference),
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get(headerContentType))
	if mediaType == contentTypeJSON && r.Body != nil {
		var body core.SynthesisRequest

		err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes)).Decode(&body)
		if err != nil && !errors.Is(err, io.EOF) {
			return core.SynthesisRequest{}, fmt.Errorf("%w: %w", core.ErrInvalidRequest, err)
		}

		if req.Text == "" {
			req.Text = body.Text
		}

		if req.ReferenceAudioURL == "" {
			req.ReferenceAudioURL = body.ReferenceAudioURL
		}
	}

	req.ReferenceAudioURL = strings.TrimSpace(req.ReferenceAudioURL)
	if req.ReferenceAudioURL != "" && !isHTTPURL(req.ReferenceAudioURL) {
		return core.SynthesisRequest{}, errInvalidReference
	}

	return req, nil
}

func isHTTPURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}

	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func writeAudio(w http.ResponseWriter, filename, key string, audio []byte) {
	w.Header().Set(headerContentType, contentTypeWAV)
	w.Header().Set(headerContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set(headerContentLength, strconv.Itoa(len(audio)))

	if key != "" {
		w.Header().Set(headerAudioKey, key)
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}
