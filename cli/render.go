// Terminal rendering of results, tool listings and summaries.

package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/richinex/scribe/agent"
	"github.com/richinex/scribe/eval"
	"github.com/richinex/scribe/model"
	"github.com/richinex/scribe/retrieval"
	"github.com/richinex/scribe/storage"
	"github.com/richinex/scribe/tools"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	headingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	bodyStyle  = lipgloss.NewStyle().PaddingLeft(2)
)

const wrapWidth = 100

func printResult(w io.Writer, res agent.Result) {
	fmt.Fprintln(w, titleStyle.Render("Task "+res.Task.ID))

	fmt.Fprintln(w, headingStyle.Render("Plan"))
	for _, s := range res.Plan.Steps {
		action := s.Action
		if s.Unresolved {
			action = errorStyle.Render("unresolved")
		}
		fmt.Fprintln(w, bodyStyle.Render(fmt.Sprintf("%d. %s [%s] -> %s", s.Index, s.Description, s.Capability, action)))
	}
	if res.Plan.Rationale != "" {
		fmt.Fprintln(w, bodyStyle.Render(dimStyle.Render(truncateString(res.Plan.Rationale, 400))))
	}

	if len(res.Records) > 0 {
		fmt.Fprintln(w, headingStyle.Render("Execution"))
		for _, r := range res.Records {
			fmt.Fprintln(w, bodyStyle.Render(formatRecord(r)))
		}
	}

	if out := res.Output(); out != "" {
		fmt.Fprintln(w, headingStyle.Render("Output"))
		fmt.Fprintln(w, renderOutput(res, out))
	}

	printReflection(w, res.Reflection)

	fmt.Fprintln(w, headingStyle.Render("Scores"))
	sc := res.Scores
	fmt.Fprintln(w, bodyStyle.Render(fmt.Sprintf(
		"overall %.2f  success %.2f  efficiency %.2f  tool usage %.2f  reflection %.2f",
		sc.Overall, sc.Success, sc.Efficiency, sc.ToolUsage, sc.ReflectionQuality)))

	state := okStyle.Render(string(res.State))
	if res.Failed() {
		state = errorStyle.Render(string(res.State))
	}
	line := fmt.Sprintf("%s in %s", state, res.Duration.Round(time.Millisecond))
	if res.Failure != nil {
		line += fmt.Sprintf(" (%s: %v)", model.Kind(res.Failure), res.Failure)
	}
	fmt.Fprintln(w, line)
}

func formatRecord(r model.ExecutionRecord) string {
	status := okStyle.Render("ok")
	if !r.Succeeded() {
		status = errorStyle.Render(model.Kind(r.Error))
	}
	line := fmt.Sprintf("step %d %s %s (%s)", r.Step, r.Action, status, r.Duration.Round(time.Millisecond))
	if !r.Succeeded() {
		line += ": " + truncateString(r.Error.Error(), 200)
	}
	for _, e := range r.SideEffects {
		line += "\n  " + dimStyle.Render(fmt.Sprintf("%s -> %s", e.Kind, e.Target))
	}
	return line
}

func printReflection(w io.Writer, r model.Reflection) {
	fmt.Fprintln(w, headingStyle.Render("Reflection"))
	verdict := okStyle.Render("successful")
	if !r.Success {
		verdict = errorStyle.Render("unsuccessful")
	}
	fmt.Fprintln(w, bodyStyle.Render("Outcome: "+verdict))
	if r.Analysis != "" {
		fmt.Fprintln(w, bodyStyle.Render(r.Analysis))
	}
	printList(w, "Strengths", r.Strengths)
	printList(w, "Weaknesses", r.Weaknesses)
	if r.Alternative != "" {
		fmt.Fprintln(w, bodyStyle.Render("Suggested alternative: "+r.Alternative))
	}
}

func printList(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintln(w, bodyStyle.Render(label+":"))
	for _, it := range items {
		fmt.Fprintln(w, bodyStyle.Render("  - "+it))
	}
}

// renderOutput renders generated markdown; HTML pages and plain answers
// are printed as they are.
func renderOutput(res agent.Result, out string) string {
	for i := len(res.Records) - 1; i >= 0; i-- {
		r := res.Records[i]
		if !r.Succeeded() {
			continue
		}
		if c, ok := r.Data.(tools.Content); ok && !c.HTML {
			return renderMarkdown(out)
		}
		break
	}
	return out
}

func renderMarkdown(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

func printTools(w io.Writer, specs []tools.ActionSpec, verbose bool) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Actions (%d)", len(specs))))
	for _, s := range specs {
		name := headingStyle.Render(s.Name)
		if s.SideEffecting {
			name += " " + dimStyle.Render("(side effects)")
		}
		fmt.Fprintln(w, name)
		fmt.Fprintln(w, bodyStyle.Render(s.Description))
		fmt.Fprintln(w, bodyStyle.Render("tags: "+strings.Join(s.Tags, ", ")))
		if verbose {
			for _, line := range describeInputs(s) {
				fmt.Fprintln(w, bodyStyle.Render(line))
			}
		}
	}
}

func describeInputs(s tools.ActionSpec) []string {
	props, _ := s.InputSchema["properties"].(map[string]any)
	required := map[string]bool{}
	switch req := s.InputSchema["required"].(type) {
	case []string:
		for _, r := range req {
			required[r] = true
		}
	case []any:
		for _, r := range req {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		p, _ := props[name].(map[string]any)
		typ, _ := p["type"].(string)
		line := fmt.Sprintf("  %s (%s)", name, typ)
		if required[name] {
			line += " required"
		}
		if d, ok := p["default"]; ok {
			line += fmt.Sprintf(" default=%v", d)
		}
		if desc, _ := p["description"].(string); desc != "" {
			line += ": " + desc
		}
		lines = append(lines, line)
	}
	return lines
}

func printSummary(w io.Writer, s eval.Summary) {
	fmt.Fprintln(w, titleStyle.Render("Performance summary"))
	fmt.Fprintln(w, bodyStyle.Render(fmt.Sprintf("Tasks: %d", s.TotalTasks)))
	if s.TotalTasks == 0 {
		fmt.Fprintln(w, bodyStyle.Render(dimStyle.Render("No tasks recorded yet.")))
		return
	}
	fmt.Fprintln(w, bodyStyle.Render(fmt.Sprintf("Success rate: %.1f%%", s.SuccessRate*100)))
	fmt.Fprintln(w, bodyStyle.Render(fmt.Sprintf("Reflection rate: %.1f%%", s.ReflectionRate*100)))
	fmt.Fprintln(w, bodyStyle.Render(fmt.Sprintf("Average steps: %.2f", s.AverageReasoningSteps)))
	fmt.Fprintln(w, bodyStyle.Render(fmt.Sprintf("Overall score: %.2f", s.AverageScores.Overall)))
	fmt.Fprintln(w, bodyStyle.Render("Most used action: "+s.MostUsedTool))

	names := make([]string, 0, len(s.ToolUsageCount))
	for name := range s.ToolUsageCount {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(w, bodyStyle.Render(fmt.Sprintf("  %s: %d", name, s.ToolUsageCount[name])))
	}
}

func printOutbox(w io.Writer, queued []storage.Queued) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Outbox (%d queued)", len(queued))))
	for _, q := range queued {
		fmt.Fprintln(w, bodyStyle.Render(fmt.Sprintf("%s  %s  %s",
			dimStyle.Render(q.CreatedAt.Format(time.DateTime)), q.Message.Recipient, q.Message.Subject)))
		fmt.Fprintln(w, bodyStyle.Render(dimStyle.Render("  "+q.DeliveryID)))
	}
}

func printIngestStats(w io.Writer, s retrieval.IngestStats) {
	fmt.Fprintln(w, titleStyle.Render("Ingestion complete"))
	fmt.Fprintln(w, bodyStyle.Render(fmt.Sprintf("Files: %d", s.Files)))
	fmt.Fprintln(w, bodyStyle.Render(fmt.Sprintf("Chunks: %d (%d new, %d already stored)", s.Chunks, s.Embedded, s.Skipped)))
	if s.Sizes.Chunks > 0 {
		fmt.Fprintln(w, bodyStyle.Render(fmt.Sprintf("Chunk size: avg %.0f, min %d, max %d",
			s.Sizes.Average, s.Sizes.Min, s.Sizes.Max)))
	}
	fmt.Fprintln(w, bodyStyle.Render(fmt.Sprintf("Took %s", s.Duration.Round(time.Millisecond))))
}

// truncateString shortens a string to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
