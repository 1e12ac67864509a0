package moderation

import "strings"

// Small polarity lexicon for flagging very negative messages. Scores are
// in [-1, 1]; the pipeline only acts below -0.8, so granularity matters
// less than coverage of strongly negative words.
var sentimentLexicon = map[string]float64{
	"awful":      -0.9,
	"terrible":   -0.9,
	"horrible":   -0.9,
	"miserable":  -0.9,
	"unbearable": -0.9,
	"hate":       -0.8,
	"worst":      -0.8,
	"devastated": -0.8,
	"hopeless":   -0.8,
	"worthless":  -0.8,
	"sad":        -0.5,
	"upset":      -0.5,
	"angry":      -0.5,
	"lonely":     -0.5,
	"anxious":    -0.4,
	"stressed":   -0.4,
	"tired":      -0.3,
	"bad":        -0.3,

	"good":      0.5,
	"happy":     0.6,
	"glad":      0.6,
	"grateful":  0.7,
	"wonderful": 0.8,
	"great":     0.8,
	"amazing":   0.9,
	"love":      0.8,
	"better":    0.4,
	"hopeful":   0.6,
	"calm":      0.4,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "don't": true,
	"dont": true, "can't": true, "cant": true, "won't": true,
}

// scoreSentiment averages lexicon polarity over matched words, flipping
// the sign after a negation word.
func scoreSentiment(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	total := 0.0
	matched := 0
	negate := false

	for _, word := range words {
		word = strings.Trim(word, ".,!?;:\"'()")
		if negations[word] {
			negate = true
			continue
		}
		if score, ok := sentimentLexicon[word]; ok {
			if negate {
				score = -score
			}
			total += score
			matched++
		}
		negate = false
	}

	if matched == 0 {
		return 0.0
	}
	return total / float64(matched)
}
