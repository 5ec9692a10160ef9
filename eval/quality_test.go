package eval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnswerQualityDefaults(t *testing.T) {
	t.Parallel()

	s := AnswerQuality("Short answer.", nil, nil)
	assert.Equal(t, 0.3, s.Completeness)
	assert.Equal(t, 0.8, s.Relevance)
	assert.Equal(t, 0.5, s.SourceQuality)
	assert.Equal(t, 0.5, s.Clarity)
	assert.InDelta(t, 0.3*0.3+0.8*0.3+0.5*0.2+0.5*0.2, s.Overall, 1e-9)
}

func TestAnswerQualityKeywordsAndSources(t *testing.T) {
	t.Parallel()

	sentence := strings.TrimSpace(strings.Repeat("word ", 19)) + " retrieval."
	answer := strings.Repeat(sentence+" ", 6)

	s := AnswerQuality(answer, []string{"Retrieval", "embedding"}, []float64{0.9, 0.7})
	assert.Equal(t, 1.0, s.Completeness)
	assert.Equal(t, 0.5, s.Relevance)
	assert.InDelta(t, 0.8, s.SourceQuality, 1e-9)
	assert.Equal(t, 1.0, s.Clarity)
}
