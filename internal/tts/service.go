// Package tts implements the relay's synthesis pipeline: one remote call,
// result URL normalization and the origin-checked audio download.
package tts

import (
	"context"
	"fmt"
	"net/url"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-relay/internal/core"
	"github.com/book-expert/tts-relay/internal/gradio"
	"github.com/book-expert/tts-relay/internal/tts/text"
)

const downloadPathFormat = "/download?url=%s"

// Runtime is the process state computed once at startup.
type Runtime struct {
	TokenPresent  bool
	Authenticated bool
	Account       string
	Convention    gradio.ParamConvention
}

// ServiceConfig holds the Service's static settings.
type ServiceConfig struct {
	DefaultReferenceURL string
	Runtime             Runtime
}

// Service runs Invoker → Normalizer → (Downloader).
type Service struct {
	invoker    *Invoker
	normalizer *Normalizer
	downloader *Downloader
	preparer   *text.Preparer
	cfg        ServiceConfig
	log        *logger.Logger
}

// NewService wires the pipeline stages together.
func NewService(
	invoker *Invoker,
	normalizer *Normalizer,
	downloader *Downloader,
	preparer *text.Preparer,
	cfg ServiceConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		invoker:    invoker,
		normalizer: normalizer,
		downloader: downloader,
		preparer:   preparer,
		cfg:        cfg,
		log:        log,
	}
}

// Runtime returns the immutable startup state.
func (s *Service) Runtime() Runtime {
	return s.cfg.Runtime
}

// Synthesize invokes the remote model and returns the normalized audio URL.
func (s *Service) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.SynthesisResult, error) {
	prepared, err := s.preparer.Prepare(req.Text)
	if err != nil {
		return nil, fmt.Errorf("invalid synthesis text: %w", err)
	}

	reference := req.ReferenceAudioURL
	if reference == "" {
		reference = s.cfg.DefaultReferenceURL
	}

	s.log.Info("Synthesizing %d characters (reference: %s, authenticated: %t, convention: %s)",
		len([]rune(prepared)), reference, s.cfg.Runtime.Authenticated, s.invoker.Convention())

	raw, err := s.invoker.Invoke(ctx, prepared, reference)
	if err != nil {
		s.log.Error("Remote synthesis failed: %v", err)

		return nil, err
	}

	s.log.Info("Raw remote result: %v", raw)

	normalized, err := s.normalizer.Normalize(raw)
	if err != nil {
		s.log.Error("Failed to normalize remote result %v: %v", raw, err)

		return nil, err
	}

	s.log.Info("Audio URL resolved via %s: %s", normalized.Rule, normalized.URL)

	return &core.SynthesisResult{
		Status:         core.StatusSuccess,
		AudioURL:       normalized.URL,
		DownloadURL:    fmt.Sprintf(downloadPathFormat, url.QueryEscape(normalized.URL)),
		Text:           prepared,
		AudioReference: reference,
		Authenticated:  s.cfg.Runtime.Authenticated,
	}, nil
}

// SynthesizeAudio synthesizes and then downloads the generated audio.
func (s *Service) SynthesizeAudio(
	ctx context.Context,
	req core.SynthesisRequest,
) (*core.SynthesisResult, []byte, error) {
	result, err := s.Synthesize(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	audio, err := s.Download(ctx, result.AudioURL)
	if err != nil {
		return nil, nil, err
	}

	return result, audio, nil
}

// Download fetches audio from a URL on the configured Space origin.
func (s *Service) Download(ctx context.Context, rawURL string) ([]byte, error) {
	s.log.Info("Downloading audio from %s", rawURL)

	audio, err := s.downloader.Fetch(ctx, rawURL)
	if err != nil {
		s.log.Error("Audio download failed: %v", err)

		return nil, err
	}

	s.log.Info("Audio downloaded (%d bytes)", len(audio))

	return audio, nil
}
