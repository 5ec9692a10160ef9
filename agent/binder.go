package agent

import (
	"regexp"
	"strings"

	"github.com/richinex/scribe/model"
	"github.com/richinex/scribe/tools"
)

var emailInText = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// bindInputs completes a step's inputs for the chosen action. Only
// properties the action's schema declares are kept or filled, and values
// the model proposed are never replaced.
func bindInputs(spec tools.ActionSpec, step model.Step, task model.Task, records []model.ExecutionRecord) map[string]any {
	props := tools.PropertyNames(spec.InputSchema)
	inputs := make(map[string]any, len(props))

	latest, hasLatest := latestSuccess(records)
	var content tools.Content
	if hasLatest {
		content, _ = latest.Data.(tools.Content)
	}

	for _, name := range props {
		if v, ok := step.Inputs[name]; ok && v != nil {
			inputs[name] = v
			continue
		}
		switch name {
		case "query", "topic":
			inputs[name] = step.Description
		case "recipient":
			if addr := emailInText.FindString(task.Text); addr != "" {
				inputs[name] = addr
			}
		case "subject":
			if content.Subject != "" {
				inputs[name] = content.Subject
			} else {
				inputs[name] = step.Description
			}
		case "body":
			if hasLatest && strings.TrimSpace(latest.Output) != "" {
				inputs[name] = latest.Output
			}
		case "is_html":
			if hasLatest && (content.HTML || latest.Action == "generate_html") {
				inputs[name] = true
			}
		}
	}
	return inputs
}

func latestSuccess(records []model.ExecutionRecord) (model.ExecutionRecord, bool) {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Succeeded() {
			return records[i], true
		}
	}
	return model.ExecutionRecord{}, false
}
