package insights

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tradewatch/tradewatch/internal/models"
)

var (
	codeFenceOpenRegex  = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	codeFenceCloseRegex = regexp.MustCompile("\\s*```$")
	jsonObjectRegex     = regexp.MustCompile(`\{[\s\S]*\}`)
	insightFieldRegex   = regexp.MustCompile(`(?s)"insight"\s*:\s*"((?:\\.|[^"\\])*)"`)
	referencesRegex     = regexp.MustCompile(`"references"\s*:\s*(\[[\s\S]*?\])`)
)

// ParsedInsight is the structured content extracted from LLM output
type ParsedInsight struct {
	Insight    string             `json:"insight"`
	References []models.Reference `json:"references"`
}

// StripCodeFences removes a surrounding markdown code fence
func StripCodeFences(text string) string {
	t := strings.TrimSpace(text)
	t = codeFenceOpenRegex.ReplaceAllString(t, "")
	t = codeFenceCloseRegex.ReplaceAllString(t, "")
	return strings.TrimSpace(t)
}

// ParseInsightResponse extracts {insight, references} from LLM text.
// Providers occasionally return almost-JSON (fences, prose around the
// object, unescaped newlines inside strings), so parsing degrades from
// strict JSON to regex field extraction before giving up.
func ParseInsightResponse(text string) (*ParsedInsight, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}
	t := StripCodeFences(text)

	// Direct parse
	if parsed := tryUnmarshal(t); parsed != nil {
		return parsed, true
	}

	// First {...} block in surrounding prose
	block := t
	if match := jsonObjectRegex.FindString(t); match != "" {
		block = match
		if parsed := tryUnmarshal(block); parsed != nil {
			return parsed, true
		}
	}

	// Regex fallback: insight is accepted even without references
	if match := insightFieldRegex.FindStringSubmatch(block); match != nil {
		insight := decodeEscaped(match[1])
		if insight != "" {
			return &ParsedInsight{Insight: insight, References: extractReferences(block)}, true
		}
	}

	return nil, false
}

func tryUnmarshal(text string) *ParsedInsight {
	var parsed ParsedInsight
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil
	}
	parsed.Insight = strings.TrimSpace(parsed.Insight)
	if parsed.Insight == "" {
		return nil
	}
	return &parsed
}

// decodeEscaped resolves JSON string escapes captured by regex
func decodeEscaped(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(out)
}

func extractReferences(text string) []models.Reference {
	match := referencesRegex.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	var refs []models.Reference
	if err := json.Unmarshal([]byte(match[1]), &refs); err != nil {
		return nil
	}
	return refs
}
