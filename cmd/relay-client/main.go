// Command relay-client synthesizes speech through a running tts-relay.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-relay/internal/client"
	"github.com/book-expert/tts-relay/internal/config"
	"github.com/book-expert/tts-relay/internal/core"
)

// Flag descriptions and messages.
const (
	flagTextDesc      = "Text to convert to speech"
	flagReferenceDesc = "URL of the reference voice (defaults to the relay's reference)"
	flagOutputDesc    = "Output file path (.wav)"
	flagServerDesc    = "Base URL of the relay"
	flagHealthDesc    = "Check relay health and exit"
	flagURLOnlyDesc   = "Print the generated audio URL instead of downloading it"
	flagVerboseDesc   = "Enable verbose logging"
	flagTimeoutDesc   = "Request timeout"
)

// Flag names.
const (
	flagText      = "text"
	flagReference = "reference"
	flagOutput    = "output"
	flagServer    = "server"
	flagHealth    = "health"
	flagURLOnly   = "url-only"
	flagVerbose   = "verbose"
	flagTimeout   = "timeout"
)

// Error and log messages.
const (
	errFailedToInitLogger = "failed to initialize logger: %w"
	errHealthCheckFailed  = "Health check failed: %v"
	errRelayNotHealthy    = "Relay is not healthy: %v\n"
	errTextRequired       = "--text must be provided"
	errFailedToSynthesize = "Failed to synthesize text: %v"
	errFailedToWrite      = "Failed to write audio to %s: %v"
)

const (
	logClientInitialized = "Relay client initialized (server: %s)"
	logSynthesizing      = "Synthesizing %d characters"
	logGenerated         = "Generated: %s (%d bytes)\n"
	logRelayHealthy      = "Relay is healthy (space: %s, authenticated: %t)\n"
)

// Defaults.
const (
	defaultServer      = "http://localhost:8000"
	defaultTimeout     = 5 * time.Minute
	healthCheckTimeout = 10 * time.Second
	logFileNameDefault = "relay-client.log"
	logFileNameVerbose = "relay-client-verbose.log"
	defaultOutputFile  = "audio.wav"
	outputFileMode     = 0o644
	outputDirMode      = 0o755
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text      string
	reference string
	output    string
	server    string
	health    bool
	urlOnly   bool
	verbose   bool
	timeout   time.Duration
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the main application entry point, returning an error on failure.
func run(args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	logFileName := logFileNameDefault
	if flags.verbose {
		logFileName = logFileNameVerbose
	}

	clientLog, err := logger.New(config.DefaultLogsDir, logFileName)
	if err != nil {
		return fmt.Errorf(errFailedToInitLogger, err)
	}
	defer clientLog.Close()

	clientLog.Info(logClientInitialized, flags.server)

	if flags.health {
		return handleHealthCheck(flags, clientLog, stdout)
	}

	return handleSynthesis(flags, clientLog, stdout)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("relay-client", flag.ContinueOnError)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.reference, flagReference, "", flagReferenceDesc)
	flagSet.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flagSet.StringVar(&flags.server, flagServer, defaultServer, flagServerDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flagSet.BoolVar(&flags.urlOnly, flagURLOnly, false, flagURLOnlyDesc)
	flagSet.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)
	flagSet.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	if !flags.health && flags.text == "" {
		flagSet.Usage()

		return appFlags{}, errors.New(errTextRequired)
	}

	return flags, nil
}

// handleHealthCheck performs a relay health check and prints the result.
func handleHealthCheck(flags appFlags, clientLog *logger.Logger, stdout io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	httpClient := client.NewHTTPClient(flags.server, healthCheckTimeout)

	health, err := httpClient.HealthCheck(ctx)
	if err != nil {
		clientLog.Error(errHealthCheckFailed, err)
		fmt.Fprintf(stdout, errRelayNotHealthy, err)

		return err
	}

	fmt.Fprintf(stdout, logRelayHealthy, health.SpaceURL, health.Authenticated)

	return nil
}

// handleSynthesis requests synthesis and either prints the URL or writes the WAV.
func handleSynthesis(flags appFlags, clientLog *logger.Logger, stdout io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	httpClient := client.NewHTTPClient(flags.server, flags.timeout)
	req := core.SynthesisRequest{Text: flags.text, ReferenceAudioURL: flags.reference}

	clientLog.Info(logSynthesizing, len([]rune(flags.text)))

	if flags.urlOnly {
		result, err := httpClient.Synthesize(ctx, req)
		if err != nil {
			clientLog.Error(errFailedToSynthesize, err)

			return fmt.Errorf("failed to synthesize: %w", err)
		}

		fmt.Fprintln(stdout, result.AudioURL)

		return nil
	}

	audio, err := httpClient.SynthesizeAudio(ctx, req)
	if err != nil {
		clientLog.Error(errFailedToSynthesize, err)

		return fmt.Errorf("failed to synthesize: %w", err)
	}

	outputPath := flags.output
	if outputPath == "" {
		outputPath = audio.Filename
	}

	if outputPath == "" {
		outputPath = defaultOutputFile
	}

	err = writeAudio(outputPath, audio.Data)
	if err != nil {
		clientLog.Error(errFailedToWrite, outputPath, err)

		return err
	}

	fmt.Fprintf(stdout, logGenerated, outputPath, len(audio.Data))

	return nil
}

func writeAudio(path string, data []byte) error {
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, outputDirMode)
	if err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	err = os.WriteFile(path, data, outputFileMode)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
