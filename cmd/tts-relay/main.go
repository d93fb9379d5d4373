// main package for the tts-relay
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-relay/internal/config"
	"github.com/book-expert/tts-relay/internal/gradio"
	"github.com/book-expert/tts-relay/internal/hfauth"
	"github.com/book-expert/tts-relay/internal/httpapi"
	"github.com/book-expert/tts-relay/internal/objectstore"
	"github.com/book-expert/tts-relay/internal/tts"
	"github.com/book-expert/tts-relay/internal/tts/text"
	"github.com/book-expert/tts-relay/internal/worker"
	"github.com/nats-io/nats.go"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "tts-relay.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// pipeline is everything built from the configuration at startup.
type pipeline struct {
	service *tts.Service
	probe   *tts.SpaceProbe
	runtime tts.Runtime
}

func buildPipeline(ctx context.Context, cfg *config.Config, log *logger.Logger) (*pipeline, error) {
	verifier := hfauth.NewVerifier(cfg.Auth.WhoAmIURL, cfg.Auth.Timeout())
	auth := hfauth.Authenticate(ctx, verifier, cfg.Auth.Token, log)

	// The remote call carries the token only once it has been validated.
	clientToken := ""
	if auth.Authenticated {
		clientToken = cfg.Auth.Token
	}

	// /config is served at the Space root whatever the API prefix is.
	probeClient := gradio.NewClient(cfg.Space.BaseURL, gradio.Options{
		HTTPClient: nil,
		APIPrefix:  "",
		Token:      clientToken,
	})

	probeCtx, cancel := context.WithTimeout(ctx, cfg.Auth.Timeout())
	defer cancel()

	caps, err := tts.ResolveCapabilities(probeCtx, probeClient, cfg.Space.ParamConvention, cfg.Space.APIPrefix, log)
	if err != nil {
		return nil, err
	}

	gradioClient := gradio.NewClient(cfg.Space.BaseURL, gradio.Options{
		HTTPClient: nil,
		APIPrefix:  caps.APIPrefix,
		Token:      clientToken,
	})

	downloader, err := tts.NewDownloader(cfg.Space.BaseURL, cfg.Auth.Token, cfg.Space.DownloadTimeout())
	if err != nil {
		return nil, fmt.Errorf("failed to create downloader: %w", err)
	}

	runtime := tts.Runtime{
		TokenPresent:  auth.TokenPresent,
		Authenticated: auth.Authenticated,
		Account:       auth.Account,
		Convention:    caps.Convention,
	}

	service := tts.NewService(
		tts.NewInvoker(gradioClient, cfg.Space.APIName, caps.Convention, cfg.Space.RemoteTimeout()),
		tts.NewNormalizer(cfg.Space.FileRoute(caps.APIPrefix)),
		downloader,
		text.NewPreparer(cfg.Server.MaxTextLength),
		tts.ServiceConfig{DefaultReferenceURL: cfg.Space.DefaultReferenceURL, Runtime: runtime},
		log,
	)

	return &pipeline{
		service: service,
		probe:   tts.NewSpaceProbe(gradioClient, cfg.Space.RemoteTimeout()),
		runtime: runtime,
	}, nil
}

// startNATS connects to NATS, binds the audio archive and starts the worker.
// It returns a nil archive when NATS is not configured.
func startNATS(
	ctx context.Context,
	cfg *config.Config,
	service *tts.Service,
	log *logger.Logger,
	workerErrs chan<- error,
) (*objectstore.NatsObjectStore, func(), error) {
	if !cfg.NATS.Enabled() {
		log.Info("NATS is not configured, archive and worker are disabled")

		return nil, func() {}, nil
	}

	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("tts-relay"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	archive, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to bind audio archive: %w", err)
	}

	natsWorker := worker.NewNatsWorker(
		natsConnection, cfg.NATS.SynthesizeSubject, service, archive,
		worker.Timeouts{Remote: cfg.Space.RemoteTimeout(), Download: cfg.Space.DownloadTimeout()}, log,
	)

	go func() {
		workerErrs <- natsWorker.Run(ctx)
	}()

	log.Info("Audio archive bound to bucket %s", cfg.NATS.AudioObjectStoreBucket)

	return archive, natsConnection.Close, nil
}

func serve(ctx context.Context, server *http.Server, log *logger.Logger) error {
	serveErr := make(chan error, 1)

	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	return nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := logger.New(os.TempDir(), "tts-relay-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Authenticate and resolve the remote calling convention
	relay, err := buildPipeline(ctx, cfg, finalLog)
	if err != nil {
		finalLog.Error("Failed to build synthesis pipeline: %v", err)

		return err
	}

	// 5. Optional NATS archive and worker
	workerErrs := make(chan error, 1)

	archive, closeNATS, err := startNATS(ctx, cfg, relay.service, finalLog, workerErrs)
	if err != nil {
		finalLog.Error("Failed to start NATS: %v", err)

		return err
	}
	defer closeNATS()

	options := httpapi.Options{
		Synthesizer:    relay.service,
		Prober:         relay.probe,
		Archive:        nil,
		Runtime:        relay.runtime,
		SpaceURL:       cfg.Space.BaseURL,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Log:            finalLog,
	}
	if archive != nil {
		options.Archive = archive
	}

	server := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           httpapi.NewServer(options),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	finalLog.System("%s %s listening on %s", httpapi.ServiceName, httpapi.ServiceVersion, server.Addr)
	finalLog.System("Space: %s (convention: %s)", cfg.Space.BaseURL, relay.runtime.Convention)
	finalLog.System("Authenticated: %t, token present: %t", relay.runtime.Authenticated, relay.runtime.TokenPresent)

	err = serve(ctx, server, finalLog)
	if err != nil {
		finalLog.Error("%v", err)

		return err
	}

	if cfg.NATS.Enabled() {
		workerErr := <-workerErrs
		if workerErr != nil {
			finalLog.Error("NATS worker stopped with error: %v", workerErr)

			return workerErr
		}
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
