package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-relay/internal/gradio"
)

// Used when the startup probe cannot reach the Space.
const (
	FallbackConvention = gradio.HandleRefParam
	FallbackAPIPrefix  = gradio.DefaultAPIPrefix
)

// Connector is the Space reachability check; *gradio.Client implements it.
type Connector interface {
	Connect(ctx context.Context) (*gradio.SpaceInfo, error)
}

// SpaceProbe implements core.SpaceProber over a Connector.
type SpaceProbe struct {
	connector Connector
	timeout   time.Duration
}

// NewSpaceProbe creates a SpaceProbe bounded by timeout.
func NewSpaceProbe(connector Connector, timeout time.Duration) *SpaceProbe {
	return &SpaceProbe{connector: connector, timeout: timeout}
}

// Probe connects to the Space once.
func (p *SpaceProbe) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.connector.Connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to space: %w", err)
	}

	return nil
}

// Capabilities is what the relay must know about the Space before the first
// call: how to present the reference audio and where the call API is mounted.
type Capabilities struct {
	Convention gradio.ParamConvention
	APIPrefix  string
}

// ResolveCapabilities runs once at startup. Configured values win; whatever
// is left unset comes from the Space's /config document. When the Space
// cannot be read, FallbackConvention and FallbackAPIPrefix fill the gaps.
// An empty configuredPrefix means "ask the Space".
func ResolveCapabilities(
	ctx context.Context,
	connector Connector,
	configuredConvention string,
	configuredPrefix string,
	log *logger.Logger,
) (Capabilities, error) {
	convention, fixed, err := gradio.ParseConvention(configuredConvention)
	if err != nil {
		return Capabilities{}, fmt.Errorf("failed to resolve parameter convention: %w", err)
	}

	if fixed && configuredPrefix != "" {
		log.Info("Using configured parameter convention %s and api prefix %s", convention, configuredPrefix)

		return Capabilities{Convention: convention, APIPrefix: configuredPrefix}, nil
	}

	caps := Capabilities{Convention: convention, APIPrefix: configuredPrefix}

	info, err := connector.Connect(ctx)
	if err != nil {
		log.Warn("Capability probe failed: %v", err)

		return caps.withFallbacks(fixed, log), nil
	}

	if configuredPrefix == "" {
		caps.APIPrefix = info.APIPrefix
		log.Info("Space serves its API under prefix %q", caps.APIPrefix)
	}

	if fixed {
		log.Info("Using configured parameter convention: %s", convention)

		return caps, nil
	}

	caps.Convention, err = gradio.ConventionForVersion(info.Version)
	if err != nil {
		log.Warn("Could not read space gradio version, defaulting to %s convention: %v", FallbackConvention, err)

		caps.Convention = FallbackConvention

		return caps, nil
	}

	log.Info("Space runs gradio %s, using %s convention", info.Version, caps.Convention)

	return caps, nil
}

func (c Capabilities) withFallbacks(conventionFixed bool, log *logger.Logger) Capabilities {
	if !conventionFixed {
		c.Convention = FallbackConvention
		log.Warn("Defaulting to %s convention", c.Convention)
	}

	if c.APIPrefix == "" {
		c.APIPrefix = FallbackAPIPrefix
		log.Warn("Defaulting to api prefix %s", c.APIPrefix)
	}

	return c
}
