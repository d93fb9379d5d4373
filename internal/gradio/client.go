// Package gradio provides a minimal client for the Gradio HTTP "call" API
// exposed by hosted inference Spaces.
//
// A prediction is two requests: a POST that queues the job and returns an
// event id, then a GET that streams server-sent events until the job
// completes or fails.
package gradio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Paths and headers.
const (
	configPath          = "/config"
	callPathFormat      = "%s/call/%s"
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	contentTypeJSON     = "application/json"
	contentTypeSSE      = "text/event-stream"
	bearerPrefix        = "Bearer "
)

// SSE event names emitted by the call stream.
const (
	eventComplete = "complete"
	eventError    = "error"
)

const (
	maxErrorBodyBytes = 4096
	maxSSELineBytes   = 4 * 1024 * 1024
)

// DefaultAPIPrefix is the route prefix Gradio 5 Spaces mount their API under.
// Gradio 4 Spaces use no prefix.
const DefaultAPIPrefix = "/gradio_api"

// ErrEmptyEventID indicates that the Space accepted a call but returned no event id.
var ErrEmptyEventID = errors.New("space returned an empty event id")

// Client talks to a single Gradio Space.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiPrefix  string
	token      string
}

// Options configures a Client. A nil HTTPClient means http.DefaultClient;
// timeouts are expected to come from the caller's context.
type Options struct {
	HTTPClient *http.Client
	APIPrefix  string
	Token      string
}

// SpaceInfo is the subset of the Space's /config document the relay uses.
type SpaceInfo struct {
	Version   string `json:"version"`
	APIPrefix string `json:"api_prefix"`
}

type callRequest struct {
	Data        []any  `json:"data"`
	SessionHash string `json:"session_hash"`
}

type callResponse struct {
	EventID string `json:"event_id"`
}

type errorBody struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

// NewClient creates a client bound to the Space at baseURL.
func NewClient(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiPrefix:  strings.TrimRight(opts.APIPrefix, "/"),
		token:      opts.Token,
	}
}

// BaseURL returns the Space origin this client is bound to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Connect fetches the Space's config document, confirming it is reachable.
func (c *Client) Connect(ctx context.Context) (*SpaceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+configPath, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create config request: %w", err)
	}

	c.authorize(req)
	req.Header.Set(headerAccept, contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newTransportError("failed to reach space "+c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var info SpaceInfo

	err = json.NewDecoder(resp.Body).Decode(&info)
	if err != nil {
		return nil, newTransportError("failed to decode space config", err)
	}

	return &info, nil
}

// Predict runs the named endpoint with positional inputs and returns the
// Space's output list.
func (c *Client) Predict(ctx context.Context, apiName string, data ...any) ([]any, error) {
	endpoint := fmt.Sprintf(callPathFormat, c.baseURL+c.apiPrefix, strings.TrimLeft(apiName, "/"))

	eventID, err := c.submit(ctx, endpoint, data)
	if err != nil {
		return nil, err
	}

	return c.await(ctx, endpoint+"/"+eventID)
}

func (c *Client) submit(ctx context.Context, endpoint string, data []any) (string, error) {
	if data == nil {
		data = []any{}
	}

	body, err := json.Marshal(callRequest{Data: data, SessionHash: uuid.NewString()})
	if err != nil {
		return "", fmt.Errorf("failed to marshal call request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create call request: %w", err)
	}

	c.authorize(req)
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAccept, contentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", newTransportError("failed to submit call to "+endpoint, withContextErr(ctx, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.parseErrorResponse(resp)
	}

	var queued callResponse

	err = json.NewDecoder(resp.Body).Decode(&queued)
	if err != nil {
		return "", newTransportError("failed to decode call response", err)
	}

	if queued.EventID == "" {
		return "", newTransportError("failed to queue call", ErrEmptyEventID)
	}

	return queued.EventID, nil
}

func (c *Client) await(ctx context.Context, streamURL string) ([]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}

	c.authorize(req)
	req.Header.Set(headerAccept, contentTypeSSE)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newTransportError("failed to open result stream", withContextErr(ctx, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	outputs, err := readEvents(resp.Body)

	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) && remoteErr.Kind == KindTransport && ctx.Err() != nil {
		return nil, newTransportError("result stream interrupted", withContextErr(ctx, remoteErr.Err))
	}

	return outputs, err
}

// withContextErr makes a failure caused by an expired or cancelled context
// match context.DeadlineExceeded or context.Canceled.
func withContextErr(ctx context.Context, err error) error {
	ctxErr := ctx.Err()
	if ctxErr == nil || errors.Is(err, ctxErr) {
		return err
	}

	return fmt.Errorf("%w: %w", ctxErr, err)
}

// readEvents consumes the SSE stream until a terminal event.
func readEvents(body io.Reader) ([]any, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineBytes)

	var (
		event string
		data  strings.Builder
	)

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			outputs, done, err := dispatch(event, data.String())
			if done {
				return outputs, err
			}

			event = ""

			data.Reset()
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}

			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	err := scanner.Err()
	if err != nil {
		return nil, newTransportError("failed to read result stream", err)
	}

	// A stream may end without a trailing blank line.
	outputs, done, dispatchErr := dispatch(event, data.String())
	if done {
		return outputs, dispatchErr
	}

	return nil, newTransportError("failed to read result stream", io.ErrUnexpectedEOF)
}

func dispatch(event, payload string) ([]any, bool, error) {
	switch event {
	case eventComplete:
		var outputs []any

		err := json.Unmarshal([]byte(payload), &outputs)
		if err != nil {
			return nil, true, newTransportError("failed to decode call outputs", err)
		}

		return outputs, true, nil
	case eventError:
		return nil, true, newRemoteError(0, errorMessage(payload))
	default:
		// generating, heartbeat and unnamed events carry no result.
		return nil, false, nil
	}
}

// errorMessage extracts readable text from an SSE error payload, which Gradio
// sends as null, a JSON string, or an object.
func errorMessage(payload string) string {
	var text string

	err := json.Unmarshal([]byte(payload), &text)
	if err == nil && text != "" {
		return text
	}

	var body errorBody

	err = json.Unmarshal([]byte(payload), &body)
	if err == nil && body.Error != "" {
		return body.Error
	}

	if err == nil && body.Detail != "" {
		return body.Detail
	}

	if payload == "" || payload == "null" {
		return "space reported an error without details"
	}

	return payload
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set(headerAuthorization, bearerPrefix+c.token)
	}
}

// parseErrorResponse turns a non-OK response into a classified RemoteError,
// preferring the Space's structured detail over the raw body.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var body errorBody

	message := strings.TrimSpace(string(raw))

	err := json.Unmarshal(raw, &body)
	if err == nil {
		switch {
		case body.Detail != "":
			message = body.Detail
		case body.Error != "":
			message = body.Error
		}
	}

	if message == "" {
		message = resp.Status
	}

	return newRemoteError(resp.StatusCode, message)
}
