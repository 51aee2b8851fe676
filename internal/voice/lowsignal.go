package voice

import (
	"regexp"
	"strings"
)

var spaceRE = regexp.MustCompile(`\s+`)

const trimSet = " ,.!?;:-\"'`~"

// DefaultLowSignal lists stock transcriptions the provider produces for
// silence or a clipped start of speech.
var DefaultLowSignal = []string{"no speech detected", "i", "i just"}

// LowSignalFilter decides whether a speech transcription carries an answer.
type LowSignalFilter struct {
	deny map[string]struct{}
}

func NewLowSignalFilter(phrases []string) *LowSignalFilter {
	f := &LowSignalFilter{deny: make(map[string]struct{}, len(phrases))}
	for _, p := range phrases {
		f.deny[NormalizeSpeech(p)] = struct{}{}
	}
	return f
}

// NormalizeSpeech lower-cases text, collapses whitespace and trims
// surrounding punctuation.
func NormalizeSpeech(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = spaceRE.ReplaceAllString(s, " ")
	return strings.Trim(s, trimSet)
}

// IsLowSignal reports whether text is empty or a denylisted filler.
func (f *LowSignalFilter) IsLowSignal(text string) bool {
	s := NormalizeSpeech(text)
	if s == "" {
		return true
	}
	_, ok := f.deny[s]
	return ok
}
