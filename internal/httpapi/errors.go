package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/book-expert/tts-relay/internal/core"
	"github.com/book-expert/tts-relay/internal/gradio"
	"github.com/book-expert/tts-relay/internal/objectstore"
	"github.com/book-expert/tts-relay/internal/tts"
	"github.com/book-expert/tts-relay/internal/tts/text"
)

// Caller-facing messages for classified failures.
const (
	msgQuota          = "GPU quota exceeded. Wait a few minutes or use a valid access token."
	msgUnauthorized   = "Authentication problem with the hosting platform. Check your access token."
	msgForbiddenFmt   = "Access to the space is forbidden: %s"
	msgUnavailFmt     = "The space is unavailable: %s"
	msgOrigin         = "Invalid URL - it must come from the configured space"
	msgUnintelligible = "The space returned a result that could not be turned into an audio URL"
)

// StatusFor maps a pipeline error to an HTTP status and a detail message.
// Only structured errors are inspected; message text is never parsed here.
func StatusFor(err error) (int, string) {
	var (
		remoteErr   *gradio.RemoteError
		downloadErr *tts.DownloadError
	)

	switch {
	case errors.Is(err, text.ErrTextEmpty), errors.Is(err, text.ErrTextTooLong),
		errors.Is(err, errMissingURL), errors.Is(err, errInvalidReference), errors.Is(err, core.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, tts.ErrOriginRejected):
		return http.StatusBadRequest, msgOrigin
	case errors.Is(err, tts.ErrResultUnintelligible):
		return http.StatusInternalServerError, msgUnintelligible
	case errors.Is(err, objectstore.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, errArchiveDisabled):
		return http.StatusServiceUnavailable, err.Error()
	case errors.As(err, &remoteErr):
		return statusForRemote(remoteErr)
	case errors.As(err, &downloadErr):
		return statusForDownload(downloadErr)
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func statusForRemote(err *gradio.RemoteError) (int, string) {
	switch err.Kind {
	case gradio.KindQuota:
		return http.StatusTooManyRequests, msgQuota
	case gradio.KindUnauthorized:
		return http.StatusUnauthorized, msgUnauthorized
	case gradio.KindForbidden:
		return http.StatusForbidden, fmt.Sprintf(msgForbiddenFmt, err.Message)
	case gradio.KindUnavailable:
		return http.StatusServiceUnavailable, fmt.Sprintf(msgUnavailFmt, err.Message)
	default:
		return http.StatusInternalServerError, err.Message
	}
}

func statusForDownload(err *tts.DownloadError) (int, string) {
	switch err.StatusCode {
	case http.StatusTooManyRequests:
		return http.StatusTooManyRequests, msgQuota
	case http.StatusUnauthorized:
		return http.StatusUnauthorized, msgUnauthorized
	case http.StatusForbidden:
		return http.StatusForbidden, fmt.Sprintf(msgForbiddenFmt, err.Error())
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
