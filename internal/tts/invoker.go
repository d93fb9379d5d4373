package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/tts-relay/internal/gradio"
)

// Predictor is the remote procedure call surface the invoker needs.
// *gradio.Client implements it.
type Predictor interface {
	Predict(ctx context.Context, apiName string, data ...any) ([]any, error)
}

// Invoker issues the single remote synthesis call.
type Invoker struct {
	client     Predictor
	apiName    string
	convention gradio.ParamConvention
	timeout    time.Duration
}

// NewInvoker creates an Invoker. The convention is fixed for the Invoker's
// lifetime; timeout bounds every call.
func NewInvoker(
	client Predictor,
	apiName string,
	convention gradio.ParamConvention,
	timeout time.Duration,
) *Invoker {
	return &Invoker{
		client:     client,
		apiName:    apiName,
		convention: convention,
		timeout:    timeout,
	}
}

// Convention returns the reference-audio calling convention in use.
func (i *Invoker) Convention() gradio.ParamConvention {
	return i.convention
}

// Invoke calls the remote procedure with (text, reference) and returns its
// first output unmodified, or nil when the Space returned no outputs.
func (i *Invoker) Invoke(ctx context.Context, text, referenceURL string) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	outputs, err := i.client.Predict(ctx, i.apiName, text, i.convention.Reference(referenceURL))
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", i.apiName, err)
	}

	if len(outputs) == 0 {
		return nil, nil
	}

	return outputs[0], nil
}
