package tools

import (
	"fmt"

	"github.com/richinex/scribe/llm"
)

// Deps are the collaborators of the default action set.
type Deps struct {
	Searcher  Searcher
	Completer llm.Completer
	Sender    Sender
	// Results and MinSimilarity are the retrieval defaults of the
	// knowledge actions. Zero Results keeps DefaultResults.
	Results       int
	MinSimilarity float64
	// OutputDir, when set, makes generators save their content there.
	OutputDir string
}

// DefaultActions builds the standard action set in registration order.
// Actions whose collaborators are missing are left out.
func DefaultActions(d Deps) []Action {
	var actions []Action
	if d.Searcher != nil && d.Completer != nil {
		actions = append(actions, NewRAGQuery(d.Searcher, d.Completer).WithLimits(d.Results, d.MinSimilarity))
	}
	if d.Searcher != nil {
		actions = append(actions, NewKnowledgeSearch(d.Searcher).WithLimit(d.Results))
	}
	if d.Completer != nil {
		actions = append(actions,
			NewBlogPost(d.Searcher, d.Completer, d.OutputDir),
			NewNewsletter(d.Searcher, d.Completer, d.OutputDir),
			NewHTMLPage(d.Searcher, d.Completer, d.OutputDir),
			NewDirectAnswer(d.Completer),
		)
	}
	if d.Sender != nil {
		actions = append(actions, NewSendEmail(d.Sender))
	}
	return actions
}

// WithDefaults registers the standard action set.
func (r *Registry) WithDefaults(d Deps) error {
	for _, a := range DefaultActions(d) {
		if err := r.RegisterAction(a); err != nil {
			return fmt.Errorf("register default actions: %w", err)
		}
	}
	return nil
}
