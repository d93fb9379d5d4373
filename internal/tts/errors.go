package tts

import (
	"errors"
	"fmt"
)

var (
	// ErrResultUnintelligible indicates that no URL could be derived from the remote result.
	ErrResultUnintelligible = errors.New("remote result is unintelligible")
	// ErrOriginRejected indicates a download URL outside the configured Space origin.
	ErrOriginRejected = errors.New("url must belong to the configured space")
	// ErrDownloadFailed is matched by every *DownloadError through errors.Is.
	ErrDownloadFailed = errors.New("audio download failed")
	// ErrEmptyAudio indicates the remote returned a successful but empty body.
	ErrEmptyAudio = errors.New("received empty audio data")
)

// DownloadError reports a failed audio fetch. StatusCode is zero for
// transport failures.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("audio download from %s failed with status %d: %v", e.URL, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("audio download from %s failed: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDownloadFailed.
func (e *DownloadError) Is(target error) bool {
	return target == ErrDownloadFailed
}
