package tools

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/richinex/scribe/eval"
	"github.com/richinex/scribe/index"
	"github.com/richinex/scribe/llm"
)

// Searcher retrieves ranked passages for a query.
type Searcher interface {
	Retrieve(ctx context.Context, text string, k int, minSimilarity float64) ([]index.Result, error)
}

// DefaultResults is the number of passages knowledge actions retrieve.
const DefaultResults = 5

const maxResults = 50

const answerSystemPrompt = `You are a helpful educational assistant.
Answer the question using only the provided context passages.
If the context does not contain the answer, say so plainly.
Be clear, concise and accurate.`

// Source is one passage backing an answer.
type Source struct {
	Source    string  `json:"source"`
	ChunkID   string  `json:"chunk_id"`
	Text      string  `json:"text,omitempty"`
	Relevance float64 `json:"relevance"`
}

// Answer is the structured result of rag_query.
type Answer struct {
	Answer  string            `json:"answer"`
	Sources []Source          `json:"sources"`
	Quality eval.AnswerScores `json:"quality"`
}

type ragQueryInput struct {
	Query         string  `json:"query"`
	NResults      int     `json:"n_results"`
	MinSimilarity float64 `json:"min_similarity"`
}

// RAGQuery answers questions from the knowledge base.
type RAGQuery struct {
	searcher      Searcher
	completer     llm.Completer
	results       int
	minSimilarity float64
}

// NewRAGQuery creates the rag_query action.
func NewRAGQuery(searcher Searcher, completer llm.Completer) *RAGQuery {
	return &RAGQuery{searcher: searcher, completer: completer, results: DefaultResults}
}

// WithLimits sets the default passage count and similarity floor used
// when the inputs leave them out.
func (a *RAGQuery) WithLimits(k int, minSimilarity float64) *RAGQuery {
	if k > 0 {
		a.results = k
	}
	a.minSimilarity = minSimilarity
	return a
}

// Spec describes rag_query.
func (a *RAGQuery) Spec() ActionSpec {
	return ActionSpec{
		Name:        "rag_query",
		Description: "Query the knowledge base and answer a question from the retrieved passages.",
		Tags:        []string{"query", "answer", "knowledge"},
		InputSchema: Object([]string{"query"}, map[string]any{
			"query":          Prop("string", "The question or search query", "minLength", 1),
			"n_results":      Prop("integer", "Number of passages to retrieve", "default", a.results, "minimum", 1, "maximum", maxResults),
			"min_similarity": Prop("number", "Minimum cosine similarity of a passage", "default", a.minSimilarity, "minimum", -1, "maximum", 1),
		}),
	}
}

// Handle retrieves context and asks the model for an answer.
func (a *RAGQuery) Handle(ctx context.Context, inputs map[string]any) (Output, error) {
	var in ragQueryInput
	if err := Decode(inputs, &in); err != nil {
		return Output{}, err
	}

	results, err := a.searcher.Retrieve(ctx, in.Query, in.NResults, in.MinSimilarity)
	if err != nil {
		return Output{}, fmt.Errorf("retrieve: %w", err)
	}
	sources := toSources(results, false)

	var answer string
	if len(results) == 0 {
		answer = "No relevant information was found in the knowledge base."
	} else {
		answer, err = a.completer.Complete(ctx, llm.Prompt{
			System: answerSystemPrompt,
			User:   fmt.Sprintf("Context:\n%s\n\nQuestion: %s", formatContext(results), in.Query),
		}, nil)
		if err != nil {
			return Output{}, fmt.Errorf("answer: %w", err)
		}
		answer = strings.TrimSpace(answer)
	}

	relevance := make([]float64, len(sources))
	for i, s := range sources {
		relevance[i] = s.Relevance
	}
	result := Answer{
		Answer:  answer,
		Sources: sources,
		Quality: eval.AnswerQuality(answer, keywords(in.Query), relevance),
	}
	return Output{Text: answer, Data: result}, nil
}

type searchInput struct {
	Query    string `json:"query"`
	NResults int    `json:"n_results"`
}

// KnowledgeSearch returns raw passages without generating an answer.
type KnowledgeSearch struct {
	searcher Searcher
	results  int
}

// NewKnowledgeSearch creates the knowledge_search action.
func NewKnowledgeSearch(searcher Searcher) *KnowledgeSearch {
	return &KnowledgeSearch{searcher: searcher, results: DefaultResults}
}

// WithLimit sets the default passage count.
func (a *KnowledgeSearch) WithLimit(k int) *KnowledgeSearch {
	if k > 0 {
		a.results = k
	}
	return a
}

// Spec describes knowledge_search.
func (a *KnowledgeSearch) Spec() ActionSpec {
	return ActionSpec{
		Name:        "knowledge_search",
		Description: "Search the knowledge base. Returns raw passages with relevance, without an answer.",
		Tags:        []string{"search", "retrieve", "knowledge"},
		InputSchema: Object([]string{"query"}, map[string]any{
			"query":     Prop("string", "The search query", "minLength", 1),
			"n_results": Prop("integer", "Number of passages", "default", a.results, "minimum", 1, "maximum", maxResults),
		}),
	}
}

// Handle runs the search.
func (a *KnowledgeSearch) Handle(ctx context.Context, inputs map[string]any) (Output, error) {
	var in searchInput
	if err := Decode(inputs, &in); err != nil {
		return Output{}, err
	}
	results, err := a.searcher.Retrieve(ctx, in.Query, in.NResults, -1)
	if err != nil {
		return Output{}, fmt.Errorf("retrieve: %w", err)
	}
	sources := toSources(results, true)
	return Output{Text: formatContext(results), Data: sources}, nil
}

func toSources(results []index.Result, withText bool) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		s := Source{Source: r.Chunk.SourceID, ChunkID: r.Chunk.ID, Relevance: r.Similarity}
		if s.Source == "" {
			s.Source = "unknown"
		}
		if withText {
			s.Text = r.Chunk.Text
		}
		out = append(out, s)
	}
	return out
}

func formatContext(results []index.Result) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (%s, relevance %.2f)\n%s", i+1, r.Chunk.SourceID, r.Similarity, r.Chunk.Text)
	}
	return b.String()
}

// keywords picks the content words of a query.
func keywords(query string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len([]rune(w)) > 3 {
			out = append(out, w)
		}
	}
	return out
}
