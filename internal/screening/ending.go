package screening

import "strings"

var terminalPhrases = []string{
	"that concludes our conversation",
	"i have all the information i need",
	"end of conversation",
	"we're done here",
	"that's all i needed",
}

// ClassifyEnding reports whether an agent utterance terminates the call.
// A bare "thank you" is not enough: it needs a terminal phrase, or both
// "goodbye" and "thank you".
func ClassifyEnding(text string) bool {
	s := strings.ToLower(text)
	for _, p := range terminalPhrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return strings.Contains(s, "goodbye") && strings.Contains(s, "thank you")
}
