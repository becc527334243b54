package reasoner

import (
	"strings"
	"unicode/utf8"
)

// #region confidence

var hedgingPhrases = []string{
	"not sure",
	"uncertain",
	"unknown",
	"i don't know",
	"cannot determine",
}

// EstimateConfidence scores an answer when the model reports no confidence:
// length/500 clamped to [0.1, 1], halved on hedging, 0 when empty.
func EstimateConfidence(answer string) float64 {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return 0
	}
	c := clamp(float64(utf8.RuneCountInString(answer))/500, 0.1, 1)
	lower := strings.ToLower(answer)
	for _, h := range hedgingPhrases {
		if strings.Contains(lower, h) {
			c /= 2
			break
		}
	}
	return c
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion confidence
