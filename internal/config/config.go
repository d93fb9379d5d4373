// Package config provides the configuration structure for the tts-relay.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Environment variables read once at startup.
const (
	EnvAccessToken = "HF_TOKEN"
	EnvPort        = "PORT"
)

// Defaults applied to keys the project file leaves unset.
const (
	DefaultSpaceURL              = "https://dofbi-galsenai-xtts-v2-wolof-inference.hf.space"
	DefaultAPIName               = "/predict"
	DefaultReferenceURL          = "https://github.com/Dremer404/AUDIO/raw/refs/heads/main/anta.wav"
	DefaultParamConvention       = "auto"
	DefaultRemoteTimeoutSeconds  = 180
	DefaultDownloadTimeoutSecond = 30
	DefaultWhoAmIURL             = "https://huggingface.co/api/whoami-v2"
	DefaultAuthTimeoutSeconds    = 10
	DefaultPort                  = 8000
	DefaultMaxTextLength         = 1000
	DefaultSynthesizeSubject     = "tts.synthesize"
	DefaultAudioBucket           = "TTS_AUDIO"
	DefaultLogsDir               = "/tmp/tts-relay/logs"

	maxPort = 65535
)

var (
	// ErrInvalidSpaceURL indicates that the remote base URL is not an absolute http(s) URL.
	ErrInvalidSpaceURL = errors.New("space base_url must be an absolute http or https URL")
	// ErrInvalidPort indicates that the listening port is out of range.
	ErrInvalidPort = errors.New("server port must be between 1 and 65535")
	// ErrInvalidConvention indicates an unknown parameter convention override.
	ErrInvalidConvention = errors.New("space param_convention must be one of auto, legacy, handle")
)

// SpaceConfig describes the hosted inference Space the relay forwards to.
type SpaceConfig struct {
	BaseURL                string `toml:"base_url"`
	APIName                string `toml:"api_name"`
	APIPrefix              string `toml:"api_prefix"` // empty: taken from the Space's /config
	DefaultReferenceURL    string `toml:"default_reference_url"`
	ParamConvention        string `toml:"param_convention"`
	RemoteTimeoutSeconds   int    `toml:"remote_timeout_seconds"`
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"`
}

// AuthConfig holds the access credential and the endpoint used to validate it.
type AuthConfig struct {
	Token          string `toml:"token"`
	WhoAmIURL      string `toml:"whoami_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port           int      `toml:"port"`
	MaxTextLength  int      `toml:"max_text_length"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// NATSConfig holds the optional NATS settings. An empty URL disables NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	SynthesizeSubject      string `toml:"synthesize_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Space  SpaceConfig  `toml:"space"`
	Auth   AuthConfig   `toml:"auth"`
	Server ServerConfig `toml:"server"`
	NATS   NATSConfig   `toml:"nats"`
	Paths  PathsConfig  `toml:"paths"`
}

// Load loads the configuration for the tts-relay, fills defaults, applies
// the environment overlay and validates the result.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	err = cfg.ApplyEnv(os.LookupEnv)
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills every unset key with its default value.
func (c *Config) ApplyDefaults() {
	c.Space.BaseURL = strings.TrimRight(orDefault(c.Space.BaseURL, DefaultSpaceURL), "/")
	c.Space.APIName = orDefault(c.Space.APIName, DefaultAPIName)
	c.Space.DefaultReferenceURL = orDefault(c.Space.DefaultReferenceURL, DefaultReferenceURL)
	c.Space.ParamConvention = orDefault(c.Space.ParamConvention, DefaultParamConvention)

	if c.Space.RemoteTimeoutSeconds <= 0 {
		c.Space.RemoteTimeoutSeconds = DefaultRemoteTimeoutSeconds
	}

	if c.Space.DownloadTimeoutSeconds <= 0 {
		c.Space.DownloadTimeoutSeconds = DefaultDownloadTimeoutSecond
	}

	c.Auth.WhoAmIURL = orDefault(c.Auth.WhoAmIURL, DefaultWhoAmIURL)

	if c.Auth.TimeoutSeconds <= 0 {
		c.Auth.TimeoutSeconds = DefaultAuthTimeoutSeconds
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}

	if c.Server.MaxTextLength <= 0 {
		c.Server.MaxTextLength = DefaultMaxTextLength
	}

	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}

	c.NATS.SynthesizeSubject = orDefault(c.NATS.SynthesizeSubject, DefaultSynthesizeSubject)
	c.NATS.AudioObjectStoreBucket = orDefault(c.NATS.AudioObjectStoreBucket, DefaultAudioBucket)
	c.Paths.BaseLogsDir = orDefault(c.Paths.BaseLogsDir, DefaultLogsDir)
}

// ApplyEnv overlays the access token and listening port from the environment.
// The lookup function is injected so callers and tests control the source.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	token, ok := lookup(EnvAccessToken)
	if ok && strings.TrimSpace(token) != "" {
		c.Auth.Token = strings.TrimSpace(token)
	}

	portValue, ok := lookup(EnvPort)
	if ok && portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidPort, EnvPort, portValue)
		}

		c.Server.Port = port
	}

	return nil
}

// Validate checks the values the relay cannot run without.
func (c *Config) Validate() error {
	parsed, err := url.Parse(c.Space.BaseURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidSpaceURL, c.Space.BaseURL)
	}

	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Server.Port)
	}

	switch c.Space.ParamConvention {
	case "auto", "legacy", "handle":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidConvention, c.Space.ParamConvention)
	}

	return nil
}

// FileRoute returns the Space route that serves generated files under the
// resolved API prefix, e.g. "https://host/gradio_api/file=".
func (s SpaceConfig) FileRoute(apiPrefix string) string {
	return s.BaseURL + apiPrefix + "/file="
}

// RemoteTimeout returns the upper bound for a single remote call.
func (s SpaceConfig) RemoteTimeout() time.Duration {
	return time.Duration(s.RemoteTimeoutSeconds) * time.Second
}

// DownloadTimeout returns the upper bound for a single audio download.
func (s SpaceConfig) DownloadTimeout() time.Duration {
	return time.Duration(s.DownloadTimeoutSeconds) * time.Second
}

// Timeout returns the upper bound for the startup credential check.
func (a AuthConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// Address returns the listen address for the HTTP server.
func (s ServerConfig) Address() string {
	return ":" + strconv.Itoa(s.Port)
}

// Enabled reports whether NATS integration is configured.
func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}
