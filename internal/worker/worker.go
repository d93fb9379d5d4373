// Package worker provides a NATS worker that serves synthesis requests.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-relay/internal/core"
	"github.com/book-expert/tts-relay/internal/httpapi"
	"github.com/nats-io/nats.go"
)

// ErrNoReplySubject indicates a request was published without a reply inbox.
var ErrNoReplySubject = errors.New("message has no reply subject")

// Reply is the JSON document sent back for every request. On failure Status
// is "error" and Detail and Code carry the same values the HTTP API returns.
type Reply struct {
	core.SynthesisResult

	AudioKey string `json:"audio_key,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Code     int    `json:"code,omitempty"`
}

// Timeouts bounds each stage of a request.
type Timeouts struct {
	Remote   time.Duration
	Download time.Duration
}

// NatsWorker answers synthesis requests published on a NATS subject.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	synthesizer    core.Synthesizer
	archive        core.AudioArchive
	timeouts       Timeouts
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. When archive is not
// nil the worker also downloads the audio and archives it.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	synthesizer core.Synthesizer,
	archive core.AudioArchive,
	timeouts Timeouts,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		synthesizer:    synthesizer,
		archive:        archive,
		timeouts:       timeouts,
		log:            log,
	}
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for synthesis requests on subject: %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	if msg.Reply == "" {
		w.log.Warn("Dropping message on %s: %v", msg.Subject, ErrNoReplySubject)

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.budget())
	defer cancel()

	reply := w.process(ctx, msg.Data)

	err := w.publishReply(msg, reply)
	if err != nil {
		w.log.Error("Failed to publish reply on %s: %v", msg.Reply, err)
	}
}

// budget covers the remote call plus, when archiving, the audio download.
func (w *NatsWorker) budget() time.Duration {
	if w.archive == nil {
		return w.timeouts.Remote
	}

	return w.timeouts.Remote + w.timeouts.Download
}

func (w *NatsWorker) process(ctx context.Context, data []byte) *Reply {
	var req core.SynthesisRequest

	err := json.Unmarshal(data, &req)
	if err != nil {
		return w.errorReply(req, fmt.Errorf("%w: %w", core.ErrInvalidRequest, err))
	}

	if w.archive == nil {
		result, synthErr := w.synthesizer.Synthesize(ctx, req)
		if synthErr != nil {
			return w.errorReply(req, synthErr)
		}

		return &Reply{SynthesisResult: *result}
	}

	result, audio, err := w.synthesizer.SynthesizeAudio(ctx, req)
	if err != nil {
		return w.errorReply(req, err)
	}

	audioKey, err := w.archive.Archive(ctx, result.AudioURL, audio)
	if err != nil {
		w.log.Warn("Failed to archive audio from %s: %v", result.AudioURL, err)

		return &Reply{SynthesisResult: *result}
	}

	w.log.Info("Archived %d bytes of audio as %s", len(audio), audioKey)

	return &Reply{SynthesisResult: *result, AudioKey: audioKey}
}

func (w *NatsWorker) errorReply(req core.SynthesisRequest, err error) *Reply {
	code, detail := httpapi.StatusFor(err)

	w.log.Error("Synthesis request failed with %d: %v", code, err)

	return &Reply{
		SynthesisResult: core.SynthesisResult{
			Status:         core.StatusError,
			Text:           req.Text,
			AudioReference: req.ReferenceAudioURL,
		},
		Detail: detail,
		Code:   code,
	}
}

// publishReply marshals and responds with the reply document.
func (w *NatsWorker) publishReply(msg *nats.Msg, reply *Reply) error {
	replyData, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply: %w", err)
	}

	return nil
}
