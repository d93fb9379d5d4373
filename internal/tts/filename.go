package tts

import (
	"strings"
	"unicode"

	"github.com/book-expert/tts-relay/internal/tts/text"
)

const (
	attachmentPrefix       = "audio_"
	attachmentExtension    = ".wav"
	attachmentTextRunes    = 20
	invalidCharReplacement = "_"

	// DefaultAttachmentName is used when no text is available for the name.
	DefaultAttachmentName = "audio.wav"
)

var filenameReplacer = strings.NewReplacer(
	"<", invalidCharReplacement,
	">", invalidCharReplacement,
	":", invalidCharReplacement,
	"\"", invalidCharReplacement,
	"/", invalidCharReplacement,
	"\\", invalidCharReplacement,
	"|", invalidCharReplacement,
	"?", invalidCharReplacement,
	"*", invalidCharReplacement,
	";", invalidCharReplacement,
)

// AttachmentName builds the download filename "audio_<first 20 chars>.wav".
func AttachmentName(source string) string {
	name := SanitizeFilename(strings.TrimSpace(text.Truncate(source, attachmentTextRunes)))
	if name == "" {
		return DefaultAttachmentName
	}

	return attachmentPrefix + name + attachmentExtension
}

// SanitizeFilename replaces characters that are unsafe in file names or in
// a Content-Disposition header.
func SanitizeFilename(filename string) string {
	filename = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}

		return r
	}, filename)

	return filenameReplacer.Replace(filename)
}
