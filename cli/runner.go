// Command execution for CLI commands.
//
// Information Hiding:
// - Command dispatch logic hidden
// - Interactive loop hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/richinex/scribe/agent"
	"github.com/richinex/scribe/eval"
	"github.com/richinex/scribe/retrieval"
)

// ErrTaskFailed is returned by RunTask when the task ended FAILED. The
// result has already been printed.
var ErrTaskFailed = errors.New("task failed")

// RunTask executes one task and prints its plan, records, reflection and
// scores. With report set the evaluation report is saved as well.
func (a *App) RunTask(ctx context.Context, task string, report bool) (agent.Result, error) {
	if strings.TrimSpace(task) == "" {
		return agent.Result{}, fmt.Errorf("task text is empty")
	}

	res := a.Orchestrator.Run(ctx, task)
	printResult(a.out, res)

	if report {
		path, err := a.SaveReport()
		if err != nil {
			return res, err
		}
		fmt.Fprintf(a.out, "Report saved to %s\n", path)
	}
	if res.Failed() {
		return res, ErrTaskFailed
	}
	return res, nil
}

// Chat runs tasks read line by line from in until quit, exit or EOF.
func (a *App) Chat(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(a.out, titleStyle.Render("scribe interactive mode"))
	fmt.Fprintln(a.out, dimStyle.Render("Commands: tools, stats, save, quit. Anything else runs as a task."))
	fmt.Fprintln(a.out)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(a.out, "> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "quit", "exit":
			fmt.Fprintln(a.out, "Goodbye!")
			return nil
		case "tools":
			a.ListTools(false)
		case "stats":
			printSummary(a.out, a.Evaluator.Summary())
		case "save":
			path, err := a.SaveReport()
			if err != nil {
				fmt.Fprintln(a.out, errorStyle.Render("Error: "+err.Error()))
				continue
			}
			fmt.Fprintf(a.out, "Report saved to %s\n", path)
		default:
			if err := ctx.Err(); err != nil {
				return err
			}
			res := a.Orchestrator.Run(ctx, input)
			printResult(a.out, res)
		}
		fmt.Fprintln(a.out)
	}
	return scanner.Err()
}

// Ingest adds documents to the knowledge base. Without paths the
// collection's documents directory is used.
func (a *App) Ingest(ctx context.Context, paths []string) (retrieval.IngestStats, error) {
	if len(paths) == 0 {
		dir := a.Settings.Retrieval.DocumentsDir()
		if _, err := os.Stat(dir); err != nil {
			return retrieval.IngestStats{}, fmt.Errorf("no paths given and %s is not readable: %w", dir, err)
		}
		paths = []string{dir}
	}

	in, err := a.Ingestor()
	if err != nil {
		return retrieval.IngestStats{}, err
	}
	stats, err := in.IngestPaths(ctx, paths...)
	if err != nil {
		return stats, err
	}
	printIngestStats(a.out, stats)
	return stats, nil
}

// Reset empties the knowledge base: the stored chunks, the embedding
// metadata and the in-memory index. Task history is kept.
func (a *App) Reset(ctx context.Context) error {
	if err := a.DB.Chunks().Reset(ctx); err != nil {
		return err
	}
	a.Retriever.Index().Reset()
	fmt.Fprintln(a.out, okStyle.Render("Knowledge base reset: "+a.Settings.Retrieval.Collection))
	return nil
}

// Outbox prints the queued email messages, oldest first.
func (a *App) Outbox(ctx context.Context) error {
	queued, err := a.DB.Outbox().Pending(ctx)
	if err != nil {
		return err
	}
	printOutbox(a.out, queued)
	return nil
}

// ListTools prints the registered actions.
func (a *App) ListTools(verbose bool) {
	printTools(a.out, a.Registry.Specs(), verbose)
}

// Stats prints the performance summary of the persisted history and
// optionally saves the evaluation report.
func (a *App) Stats(save bool) error {
	printSummary(a.out, a.Evaluator.Summary())
	if !save {
		return nil
	}
	path, err := a.SaveReport()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Report saved to %s\n", path)
	return nil
}

// SaveReport writes the evaluation report into the configured report
// directory.
func (a *App) SaveReport() (string, error) {
	return a.Evaluator.SaveReport(eval.DefaultReportPath(a.Settings.Eval.ReportDir, time.Now()))
}
