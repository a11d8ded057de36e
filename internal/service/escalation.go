package service

import "strings"

// EscalationDetector decides whether a visitor message is a request for a
// human agent.
type EscalationDetector interface {
	Detect(text string) bool
}

type phraseDetector struct {
	phrases []string
}

// NewEscalationDetector builds a detector that matches any of the configured
// phrases as a case and accent insensitive substring.
func NewEscalationDetector(phrases []string) EscalationDetector {
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = normalizeText(p)
		if p != "" {
			normalized = append(normalized, p)
		}
	}
	return &phraseDetector{phrases: normalized}
}

func (d *phraseDetector) Detect(text string) bool {
	norm := normalizeText(text)
	for _, phrase := range d.phrases {
		if strings.Contains(norm, phrase) {
			return true
		}
	}
	return false
}

var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u",
)

// normalizeText lowercases and strips Spanish accents so "pásame" matches the
// phrase "pasame". Ñ is kept, it is a distinct letter.
func normalizeText(text string) string {
	return accentReplacer.Replace(strings.ToLower(strings.TrimSpace(text)))
}
