package wake

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// VerifierOption is a functional option for configuring a [Verifier].
type VerifierOption func(*Verifier)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required when
// the heard text phonetically overlaps the wake phrase. Default: 0.70.
func WithPhoneticThreshold(threshold float64) VerifierOption {
	return func(v *Verifier) { v.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic overlap is found and the verifier falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) VerifierOption {
	return func(v *Verifier) { v.fuzzyThreshold = threshold }
}

// Verifier confirms that a detector's transcription actually is the
// configured wake phrase. Detectors err on the side of reporting; the
// verifier filters near-misses ("hey tech fox" for "hey techvox") from
// unrelated speech.
//
// The check proceeds in two stages, phonetic first:
//
//  1. Double Metaphone codes are computed for each token of the heard text
//     and the wake phrase. Any code overlap makes the text a phonetic
//     candidate, accepted if its Jaro-Winkler similarity clears the
//     phonetic threshold.
//  2. Without overlap, a stricter pure Jaro-Winkler comparison applies.
//
// A Verifier is read-only after construction and safe for concurrent use.
type Verifier struct {
	phrase            string
	phraseTokens      []string
	phraseCodes       map[string]struct{}
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewVerifier creates a Verifier for the given wake phrase.
func NewVerifier(phrase string, opts ...VerifierOption) *Verifier {
	normalized := strings.ToLower(strings.TrimSpace(phrase))
	tokens := strings.Fields(normalized)
	v := &Verifier{
		phrase:            normalized,
		phraseTokens:      tokens,
		phraseCodes:       codesForTokens(tokens),
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Phrase returns the normalized wake phrase.
func (v *Verifier) Phrase() string { return v.phrase }

// Verify reports whether text is a confident rendition of the wake phrase,
// along with the similarity score that decided it. When ok is false the
// score is the best similarity found, useful for logging near-misses.
func (v *Verifier) Verify(text string) (score float64, ok bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" || len(v.phraseTokens) == 0 {
		return 0, false
	}
	tokens := strings.Fields(normalized)

	jwScore := bestSimilarity(tokens, v.phraseTokens, normalized, v.phrase)

	if codesOverlap(codesForTokens(tokens), v.phraseCodes) {
		return jwScore, jwScore >= v.phoneticThreshold
	}
	return jwScore, jwScore >= v.fuzzyThreshold
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (produced when a word is too short or has no
// consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
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

// bestSimilarity computes the highest Jaro-Winkler similarity between the
// heard text and the phrase using two strategies:
//
//  1. Full-string comparison ("hey tech fox" vs "hey techvox").
//  2. Space-stripped comparison ("heytechfox" vs "heytechvox"), which catches
//     transcriptions that split or merge words differently.
//
// The whole phrase is always compared; scoring individual tokens would let
// any utterance sharing a single word with the phrase slip through.
// longTolerance is passed as false to use standard Jaro-Winkler scoring.
func bestSimilarity(heardTokens, phraseTokens []string, heardFull, phraseFull string) float64 {
	score := matchr.JaroWinkler(heardFull, phraseFull, false)

	if len(heardTokens) > 1 || len(phraseTokens) > 1 {
		concat1 := strings.Join(heardTokens, "")
		concat2 := strings.Join(phraseTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	return score
}
