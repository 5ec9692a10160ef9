package eval

import (
	"math"
	"strings"
)

// AnswerScores grade a generated answer.
type AnswerScores struct {
	Completeness  float64 `json:"completeness"`
	Relevance     float64 `json:"relevance"`
	SourceQuality float64 `json:"source_quality"`
	Clarity       float64 `json:"clarity"`
	Overall       float64 `json:"overall"`
}

// AnswerQuality scores an answer with length, keyword, source and sentence
// heuristics. Keywords and source relevances are optional.
func AnswerQuality(answer string, keywords []string, sourceRelevance []float64) AnswerScores {
	var s AnswerScores
	words := len(strings.Fields(answer))

	switch {
	case words < 20:
		s.Completeness = 0.3
	case words < 50:
		s.Completeness = 0.6
	case words < 100:
		s.Completeness = 0.8
	default:
		s.Completeness = 1.0
	}

	if len(keywords) > 0 {
		lower := strings.ToLower(answer)
		matches := 0
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				matches++
			}
		}
		s.Relevance = float64(matches) / float64(len(keywords))
	} else {
		s.Relevance = 0.8
	}

	if len(sourceRelevance) > 0 {
		var sum float64
		for _, r := range sourceRelevance {
			sum += r
		}
		s.SourceQuality = sum / float64(len(sourceRelevance))
	} else {
		s.SourceQuality = 0.5
	}

	sentences := strings.Count(answer, ".") + strings.Count(answer, "!") + strings.Count(answer, "?")
	avg := float64(words) / float64(max(sentences, 1))
	if avg >= 15 && avg <= 25 {
		s.Clarity = 1.0
	} else {
		s.Clarity = math.Max(0.5, 1.0-math.Abs(avg-20)/20)
	}

	s.Overall = s.Completeness*0.3 + s.Relevance*0.3 + s.SourceQuality*0.2 + s.Clarity*0.2
	return s
}
