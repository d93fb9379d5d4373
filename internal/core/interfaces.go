// Package core defines the core types and interfaces shared by the relay's
// transports (HTTP and NATS) and its synthesis pipeline.
package core

import (
	"context"
	"errors"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrInvalidRequest indicates a synthesis request that could not be decoded.
// Every transport maps it to the same client error.
var ErrInvalidRequest = errors.New("request body must be a JSON object")

// AudioArchive stores relayed audio under a generated key and records the
// URL it was fetched from.
type AudioArchive interface {
	Archive(ctx context.Context, sourceURL string, audio []byte) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
}

// SynthesisRequest is one text-to-speech request. An empty reference falls
// back to the configured default reference audio.
type SynthesisRequest struct {
	Text              string `json:"text"`
	ReferenceAudioURL string `json:"audio_reference_url,omitempty"`
}

// SynthesisResult describes where the generated audio can be fetched.
type SynthesisResult struct {
	Status         string `json:"status"`
	AudioURL       string `json:"audio_url"`
	DownloadURL    string `json:"download_url"`
	Text           string `json:"text"`
	AudioReference string `json:"audio_reference"`
	Authenticated  bool   `json:"authenticated"`
}

// Synthesizer runs the remote synthesis pipeline.
type Synthesizer interface {
	// Synthesize invokes the remote model and returns the normalized audio URL.
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
	// SynthesizeAudio synthesizes and then downloads the audio bytes.
	SynthesizeAudio(ctx context.Context, req SynthesisRequest) (*SynthesisResult, []byte, error)
	// Download fetches audio from a URL on the configured remote origin.
	Download(ctx context.Context, rawURL string) ([]byte, error)
}

// SpaceProber checks that the remote Space is reachable.
type SpaceProber interface {
	Probe(ctx context.Context) error
}
