package tts

import (
	"fmt"
	"strings"
)

// Rule names the normalization branch that produced a URL.
type Rule string

// Normalization rules in precedence order.
const (
	RuleDirectURL    Rule = "direct_url"
	RuleTempPath     Rule = "temp_path"
	RuleAbsolutePath Rule = "absolute_path"
	RuleCoerced      Rule = "coerced"
)

var (
	schemePrefixes  = []string{"https://", "http://"}
	tempDirPrefixes = []string{"/tmp/gradio/", "tmp/gradio/"}
)

const absolutePathPrefix = "/"

// Structured result fields, in lookup order.
var structuredFields = []string{"path", "url"}

// Normalized is an absolute audio URL and the rule that produced it.
type Normalized struct {
	URL  string
	Rule Rule
}

// Normalizer turns whatever the Space returns into an absolute, fetchable URL.
type Normalizer struct {
	fileRoute string
}

// NewNormalizer creates a Normalizer that rewrites paths onto fileRoute,
// e.g. "https://space.hf.space/gradio_api/file=".
func NewNormalizer(fileRoute string) *Normalizer {
	return &Normalizer{fileRoute: fileRoute}
}

// Normalize applies, in order: scheme pass-through, temp-dir rewrite,
// absolute-path rewrite, structured path field, string coercion. nil and
// empty values yield ErrResultUnintelligible.
func (n *Normalizer) Normalize(raw any) (Normalized, error) {
	switch value := raw.(type) {
	case nil:
		return Normalized{}, fmt.Errorf("%w: empty result", ErrResultUnintelligible)
	case string:
		return n.normalizeString(value)
	case map[string]any:
		return n.normalizeStructured(value)
	case []any:
		if len(value) == 0 {
			return Normalized{}, fmt.Errorf("%w: empty output list", ErrResultUnintelligible)
		}

		return n.Normalize(value[0])
	default:
		normalized, err := n.normalizeString(fmt.Sprint(value))
		if err != nil {
			return Normalized{}, err
		}

		normalized.Rule = RuleCoerced

		return normalized, nil
	}
}

func (n *Normalizer) normalizeString(value string) (Normalized, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Normalized{}, fmt.Errorf("%w: empty path", ErrResultUnintelligible)
	}

	rule := classifyPath(value)
	if rule == RuleDirectURL {
		return Normalized{URL: value, Rule: rule}, nil
	}

	return Normalized{URL: n.fileRoute + value, Rule: rule}, nil
}

func (n *Normalizer) normalizeStructured(value map[string]any) (Normalized, error) {
	for _, field := range structuredFields {
		text, ok := value[field].(string)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}

		return n.normalizeString(text)
	}

	return Normalized{}, fmt.Errorf("%w: structured result has no path field", ErrResultUnintelligible)
}

// classifyPath checks the scheme first, then the temp dir, then any absolute
// path. Every temp path is also absolute, so temp must be checked first.
func classifyPath(value string) Rule {
	switch {
	case hasAnyPrefix(strings.ToLower(value), schemePrefixes):
		return RuleDirectURL
	case hasAnyPrefix(value, tempDirPrefixes):
		return RuleTempPath
	case strings.HasPrefix(value, absolutePathPrefix):
		return RuleAbsolutePath
	default:
		return RuleCoerced
	}
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}

	return false
}
