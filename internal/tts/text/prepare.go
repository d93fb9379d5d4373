// Package text prepares caller-supplied text before it is sent for synthesis.
//
// Preparation is deliberately shallow: the remote model handles Wolof and
// other languages, so nothing here rewrites words, numbers or punctuation.
package text

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const whitespaceRegexPattern = `\s+`

var (
	// ErrTextEmpty indicates that no speakable text remained after preparation.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrTextTooLong indicates that the text exceeds the configured rune limit.
	ErrTextTooLong = errors.New("text is too long")
)

// Preparer normalizes whitespace, drops control characters and enforces a
// length limit.
type Preparer struct {
	whitespaceRegex *regexp.Regexp
	maxRunes        int
}

// NewPreparer creates a Preparer. A non-positive maxRunes disables the limit.
func NewPreparer(maxRunes int) *Preparer {
	return &Preparer{
		whitespaceRegex: regexp.MustCompile(whitespaceRegexPattern),
		maxRunes:        maxRunes,
	}
}

// Prepare returns the cleaned text or a validation error.
func (p *Preparer) Prepare(text string) (string, error) {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}

	text = p.removeControlCharacters(text)
	text = p.normalizeWhitespace(text)

	if text == "" {
		return "", ErrTextEmpty
	}

	length := utf8.RuneCountInString(text)
	if p.maxRunes > 0 && length > p.maxRunes {
		return "", fmt.Errorf("%w: %d characters, limit is %d", ErrTextTooLong, length, p.maxRunes)
	}

	return text, nil
}

// Truncate returns at most n runes of text.
func Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}

	runes := []rune(text)
	if len(runes) <= n {
		return text
	}

	return string(runes[:n])
}

func (p *Preparer) removeControlCharacters(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}

		return r
	}, text)
}

func (p *Preparer) normalizeWhitespace(text string) string {
	return strings.TrimSpace(p.whitespaceRegex.ReplaceAllString(text, " "))
}
