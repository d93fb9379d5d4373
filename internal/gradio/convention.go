package gradio

import (
	"errors"
	"fmt"
	"net/url"
	"path"

	"github.com/Masterminds/semver/v3"
)

// ParamConvention selects how a file parameter is presented to the Space.
type ParamConvention string

const (
	// LegacyURLParam sends the reference as a bare URL string (Gradio 3.x).
	LegacyURLParam ParamConvention = "legacy"
	// HandleRefParam sends the reference as a gradio.FileData handle (Gradio 4+).
	HandleRefParam ParamConvention = "handle"
)

// ConventionAuto defers the choice to the startup probe.
const ConventionAuto = "auto"

const fileDataType = "gradio.FileData"

var (
	// ErrUnknownConvention indicates an unsupported convention name.
	ErrUnknownConvention = errors.New("unknown parameter convention")
	// ErrVersionMissing indicates the Space config carried no version.
	ErrVersionMissing = errors.New("space config has no gradio version")
)

// handleConstraint matches Gradio releases that accept FileData handles.
var handleConstraint = mustConstraint(">= 4.0.0-0")

// FileMeta tags a FileData payload for the Gradio deserializer.
type FileMeta struct {
	Type string `json:"_type"`
}

// FileData is the remote-fetchable file handle understood by Gradio 4+.
type FileData struct {
	Path     string   `json:"path"`
	URL      string   `json:"url,omitempty"`
	OrigName string   `json:"orig_name,omitempty"`
	Meta     FileMeta `json:"meta"`
}

// ParseConvention resolves a configured convention name. The boolean is
// false for "auto", meaning the caller must probe.
func ParseConvention(name string) (ParamConvention, bool, error) {
	switch name {
	case ConventionAuto, "":
		return "", false, nil
	case string(LegacyURLParam):
		return LegacyURLParam, true, nil
	case string(HandleRefParam):
		return HandleRefParam, true, nil
	default:
		return "", false, fmt.Errorf("%w: %q", ErrUnknownConvention, name)
	}
}

// ConventionForVersion picks the convention a Space running the given Gradio
// version accepts.
func ConventionForVersion(version string) (ParamConvention, error) {
	if version == "" {
		return "", ErrVersionMissing
	}

	parsed, err := semver.NewVersion(version)
	if err != nil {
		return "", fmt.Errorf("failed to parse gradio version %q: %w", version, err)
	}

	if handleConstraint.Check(parsed) {
		return HandleRefParam, nil
	}

	return LegacyURLParam, nil
}

// Reference wraps a reference-audio URL in the shape this convention sends.
func (c ParamConvention) Reference(rawURL string) any {
	if c == LegacyURLParam {
		return rawURL
	}

	return FileData{
		Path:     rawURL,
		URL:      rawURL,
		OrigName: origName(rawURL),
		Meta:     FileMeta{Type: fileDataType},
	}
}

func (c ParamConvention) String() string {
	return string(c)
}

func origName(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Path == "" {
		return ""
	}

	name := path.Base(parsed.Path)
	if name == "/" || name == "." {
		return ""
	}

	return name
}

func mustConstraint(expr string) *semver.Constraints {
	constraint, err := semver.NewConstraint(expr)
	if err != nil {
		panic(fmt.Sprintf("invalid semver constraint %q: %v", expr, err))
	}

	return constraint
}
