package client

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/menta2k/waste-sorter/pkg/types"
)

// DefaultTimeout bounds a model call when the caller's context has no deadline.
const DefaultTimeout = 300 * time.Second

var reTrailing = regexp.MustCompile(`,(\s*[}\]])`)

// WithDefaultTimeout applies DefaultTimeout if ctx has no deadline.
func WithDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}

// legacyResult is the single-subject shape some prompts still produce.
type legacyResult struct {
	Primary *types.Detection `json:"primary"`
}

// ParseAnalysisResult decodes a model reply. Unparseable replies become an
// empty result tagged "fallback" rather than an error.
func ParseAnalysisResult(raw string) *types.AnalysisResult {
	raw = SanitizeModelJSON(raw)

	if !strings.HasPrefix(raw, "{") {
		return fallback("Model returned non-JSON response", "non-json")
	}

	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return fallback("Failed to parse model response", "parse-error")
	}

	if len(result.Detections) == 0 {
		var legacy legacyResult
		if err := json.Unmarshal([]byte(raw), &legacy); err == nil && legacy.Primary != nil && legacy.Primary.Label != "" {
			result.Detections = []types.Detection{*legacy.Primary}
		}
	}
	return &result
}

func fallback(description, tag string) *types.AnalysisResult {
	return &types.AnalysisResult{
		Detections:  []types.Detection{},
		Description: description,
		Tags:        []string{tag, "fallback"},
	}
}

// IsFallback reports whether r was produced by ParseAnalysisResult's fallback path.
func IsFallback(r *types.AnalysisResult) bool {
	if r == nil {
		return false
	}
	for _, t := range r.Tags {
		if t == "fallback" {
			return true
		}
	}
	return false
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from a
// model reply and keeps only the outermost object.
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = stripComments(raw)
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// stripComments removes // and /* */ comments that sit outside JSON string
// literals.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += 2 + end + 1
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
