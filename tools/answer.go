package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/richinex/scribe/llm"
)

const directAnswerSystemPrompt = `You are a helpful educational assistant.
Provide clear, concise, and accurate answers to questions.`

type directAnswerInput struct {
	Query string `json:"query"`
}

// DirectAnswer answers from the language model alone, without retrieval.
type DirectAnswer struct {
	completer llm.Completer
}

// NewDirectAnswer creates the direct_answer action.
func NewDirectAnswer(completer llm.Completer) *DirectAnswer {
	return &DirectAnswer{completer: completer}
}

// Spec describes direct_answer.
func (a *DirectAnswer) Spec() ActionSpec {
	return ActionSpec{
		Name:        "direct_answer",
		Description: "Answer a question directly from the language model, without the knowledge base.",
		Tags:        []string{"answer", "general"},
		InputSchema: Object([]string{"query"}, map[string]any{
			"query": Prop("string", "The question to answer", "minLength", 1),
		}),
	}
}

// Handle asks the model.
func (a *DirectAnswer) Handle(ctx context.Context, inputs map[string]any) (Output, error) {
	var in directAnswerInput
	if err := Decode(inputs, &in); err != nil {
		return Output{}, err
	}
	answer, err := a.completer.Complete(ctx, llm.Prompt{
		System: directAnswerSystemPrompt,
		User:   in.Query,
	}, nil)
	if err != nil {
		return Output{}, fmt.Errorf("answer: %w", err)
	}
	answer = strings.TrimSpace(answer)
	return Output{Text: answer, Data: Answer{Answer: answer, Sources: []Source{}}}, nil
}
