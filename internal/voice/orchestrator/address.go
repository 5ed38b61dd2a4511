package orchestrator

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// AddressOption is a functional option for configuring an [AddressDetector].
type AddressOption func(*AddressDetector)

// WithPhoneticMatching toggles phonetic matching of the agent name. When
// enabled, tokens that sound like the name (Double Metaphone overlap plus
// Jaro-Winkler ranking) count as a direct address, so a transcription that
// mangles the spelling still reaches the agent. Default: enabled.
func WithPhoneticMatching(enabled bool) AddressOption {
	return func(d *AddressDetector) {
		d.phonetic = enabled
	}
}

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched token to count as the agent name. Default: 0.70.
func WithPhoneticThreshold(threshold float64) AddressOption {
	return func(d *AddressDetector) {
		d.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when a
// token has no phonetic overlap with the name. Default: 0.85.
func WithFuzzyThreshold(threshold float64) AddressOption {
	return func(d *AddressDetector) {
		d.fuzzyThreshold = threshold
	}
}

// AddressDetector decides whether a transcript is directed at the agent and
// removes the address from the text before it is forwarded.
//
// A transcript addresses the agent when it contains the configured name
// (case-insensitive substring), an "@name" mention, or, when phonetic
// matching is enabled, a token that sounds like the name. The detector is
// read-only after construction and safe for concurrent use.
type AddressDetector struct {
	name      string
	nameLower string
	nameCodes map[string]struct{}

	phonetic          bool
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewAddressDetector returns a detector for the given agent name.
func NewAddressDetector(name string, opts ...AddressOption) *AddressDetector {
	d := &AddressDetector{
		name:              strings.TrimSpace(name),
		phonetic:          true,
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	d.nameLower = strings.ToLower(d.name)
	d.nameCodes = metaphoneCodes(d.nameLower)
	for _, o := range opts {
		o(d)
	}
	return d
}

// Name returns the configured agent name.
func (d *AddressDetector) Name() string { return d.name }

// Address reports whether text addresses the agent. When it does, the
// returned remainder is text with the first name or mention occurrence
// removed and trimmed; a remainder that would be empty falls back to the
// original text so the agent still receives something to respond to.
func (d *AddressDetector) Address(text string) (remainder string, ok bool) {
	if d.nameLower == "" {
		return text, false
	}
	lower := strings.ToLower(text)

	if token, found := d.literalMatch(lower); found {
		return d.strip(text, lower, token), true
	}
	if d.phonetic {
		if token, found := d.phoneticMatch(lower); found {
			return d.strip(text, lower, token), true
		}
	}
	return text, false
}

// IsAddressed reports whether text addresses the agent without stripping.
func (d *AddressDetector) IsAddressed(text string) bool {
	_, ok := d.Address(text)
	return ok
}

// literalMatch looks for an "@name" mention or the bare name as a
// case-insensitive substring. The mention form is checked first so the "@"
// is stripped along with the name.
func (d *AddressDetector) literalMatch(lower string) (token string, ok bool) {
	if mention := "@" + d.nameLower; strings.Contains(lower, mention) {
		return mention, true
	}
	if strings.Contains(lower, d.nameLower) {
		return d.nameLower, true
	}
	return "", false
}

// phoneticMatch scans individual tokens for one that sounds like the agent
// name. Tokens with Double Metaphone overlap are accepted at the phonetic
// threshold; tokens without overlap need the higher fuzzy threshold.
func (d *AddressDetector) phoneticMatch(lower string) (token string, ok bool) {
	var (
		best      string
		bestScore float64
	)
	for _, raw := range strings.Fields(lower) {
		word := strings.Trim(raw, ".,!?;:@\"'")
		if word == "" {
			continue
		}
		score := matchr.JaroWinkler(word, d.nameLower, false)
		threshold := d.fuzzyThreshold
		if codesOverlap(metaphoneCodes(word), d.nameCodes) {
			threshold = d.phoneticThreshold
		}
		if score >= threshold && score > bestScore {
			best, bestScore = raw, score
		}
	}
	return best, best != ""
}

// strip removes the first occurrence of token from text, along with one
// trailing comma or colon, preserving the original casing of the rest.
func (d *AddressDetector) strip(text, lower, token string) string {
	idx := strings.Index(lower, token)
	if idx < 0 {
		return text
	}
	end := idx + len(token)
	for end < len(text) && (text[end] == ',' || text[end] == ':') {
		end++
	}
	remainder := strings.TrimSpace(strings.TrimSpace(text[:idx]) + " " + strings.TrimSpace(text[end:]))
	if remainder == "" {
		return strings.TrimSpace(text)
	}
	return remainder
}

// metaphoneCodes returns the Double Metaphone code set for every token in s.
func metaphoneCodes(s string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	for _, t := range strings.Fields(s) {
		p, sec := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if sec != "" {
			codes[sec] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
