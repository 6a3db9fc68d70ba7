package voice

import (
	"math/rand/v2"
	"strings"
)

const complexLengthThreshold = 120

// complexPatterns mark comparison, explanation and definitional
// questions that take longer to answer well
var complexPatterns = []string{
	"compare",
	"difference between",
	" vs ",
	"versus",
	"pros and cons",
	"why ",
	"how does",
	"how do",
	"explain",
	"what is",
	"what are",
	"should i",
}

// fillerPhrases mask generation latency in a voice UI where silence
// reads as a hang. One is emitted at random before a complex answer.
var fillerPhrases = []string{
	"Let me think about that for a moment.",
	"That's a great question, give me a second.",
	"Good question, let me look into that.",
	"Hmm, let me check what I know about that.",
}

// isComplexQuery classifies an utterance as complex via a length
// threshold or a pattern match
func isComplexQuery(utterance string) bool {
	if len(utterance) > complexLengthThreshold {
		return true
	}

	lower := strings.ToLower(utterance)
	for _, pattern := range complexPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func pickRandom(n int) int {
	return rand.IntN(n)
}
