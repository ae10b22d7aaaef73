// Package extract normalizes raw recognizer payloads into plain text.
//
// Recognition engines deliver hypotheses as small JSON records such as
// {"text": "у меня нож"} or {"partial": "у меня"}. Extraction is total: a
// payload that is not well-formed JSON falls back to a best-effort pattern
// scan, and when that also fails a sentinel string is returned instead of an
// error. Downstream code treats the sentinel as ordinary non-dangerous,
// displayable text.
package extract

import (
	"encoding/json"
	"regexp"
)

// Sentinel is returned when no text can be recovered from a payload.
const Sentinel = "Не удалось распознать текст"

// textPattern is the fallback scan for a "text" field inside payloads that
// failed to parse as JSON.
var textPattern = regexp.MustCompile(`"text"\s*:\s*"(.*?)"`)

// hypothesisPayload covers the payload shapes produced by Vosk-style engines.
// Settled hypotheses carry "text"; interim ones carry "partial".
type hypothesisPayload struct {
	Text    *string `json:"text"`
	Partial *string `json:"partial"`
}

// Text extracts the hypothesis text from a raw payload.
//
// The value is returned exactly as it appears in the payload — no trimming,
// no case changes — so that embedded whitespace and Cyrillic text survive
// round-trips. An empty payload field yields an empty string, which is a
// valid (non-dangerous) extraction, not a failure.
func Text(payload string) string {
	var p hypothesisPayload
	if err := json.Unmarshal([]byte(payload), &p); err == nil {
		if p.Text != nil {
			return *p.Text
		}
		if p.Partial != nil {
			return *p.Partial
		}
	}
	if m := textPattern.FindStringSubmatch(payload); m != nil {
		return m[1]
	}
	return Sentinel
}
