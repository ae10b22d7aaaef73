// Package classify decides whether recognized text contains danger-indicating
// vocabulary.
//
// Matching is deliberate substring containment, not token matching: a keyword
// counts even inside a larger word ("ножницы" matches the keyword "нож").
// This is a known false-positive source that trades precision for simplicity
// and zero-miss behaviour on inflected Russian speech; keep it in mind when
// extending the keyword list.
//
// Classification is a pure function of the input text and the keyword set —
// there is no hidden state and no error path.
package classify

import (
	"strings"

	"golang.org/x/text/cases"
)

// DefaultKeywords is the built-in danger vocabulary, in match-priority order.
var DefaultKeywords = []string{
	"бомба", "убить", "нож", "стрелять", "взорвать",
	"террор", "громко", "кричать", "помогите", "опасность",
}

// Result is the outcome of classifying one piece of text.
type Result struct {
	// IsDanger reports whether any keyword occurred in the text.
	IsDanger bool

	// MatchedText is the first keyword (in set iteration order) found in the
	// text. Empty when IsDanger is false.
	MatchedText string
}

// Classifier matches text against an ordered, immutable keyword set.
// It is safe for concurrent use.
type Classifier struct {
	keywords []string // as configured, for reporting
	folded   []string // case-folded, for matching
}

// New creates a Classifier over the given keyword set. The slice order is
// preserved: the first keyword in iteration order that occurs in a text is
// the one reported, which keeps classification deterministic. Duplicates are
// harmless. A nil or empty set classifies everything as non-dangerous.
func New(keywords []string) *Classifier {
	c := &Classifier{
		keywords: make([]string, len(keywords)),
		folded:   make([]string, len(keywords)),
	}
	copy(c.keywords, keywords)
	for i, kw := range keywords {
		c.folded[i] = fold(kw)
	}
	return c
}

// Classify reports whether text contains any keyword as a substring.
// Matching is case-insensitive via Unicode case folding (correct for
// Cyrillic); there is no stemming and no punctuation stripping. Empty text
// never matches.
func (c *Classifier) Classify(text string) Result {
	if text == "" {
		return Result{}
	}
	foldedText := fold(text)
	for i, kw := range c.folded {
		if kw == "" {
			continue
		}
		if strings.Contains(foldedText, kw) {
			return Result{IsDanger: true, MatchedText: c.keywords[i]}
		}
	}
	return Result{}
}

// Keywords returns a copy of the configured keyword set in iteration order.
func (c *Classifier) Keywords() []string {
	out := make([]string, len(c.keywords))
	copy(out, c.keywords)
	return out
}

// fold performs Unicode case folding. A fresh caser per call: cases.Caser
// values are stateful and must not be shared between goroutines.
func fold(s string) string {
	return cases.Fold().String(s)
}
