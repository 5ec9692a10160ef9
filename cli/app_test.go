package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/scribe/agent"
	"github.com/richinex/scribe/config"
	"github.com/richinex/scribe/llm"
	"github.com/richinex/scribe/model"
)

const fact = "Goroutines are lightweight threads managed by the Go runtime."

type scriptedCompleter struct {
	mu      sync.Mutex
	prompts []llm.Prompt
	fn      func(p llm.Prompt) (string, error)
}

func (s *scriptedCompleter) Complete(_ context.Context, p llm.Prompt, _ *llm.ResponseFormat) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, p)
	s.mu.Unlock()
	return s.fn(p)
}

func answeringCompleter() *scriptedCompleter {
	return &scriptedCompleter{fn: func(p llm.Prompt) (string, error) {
		switch {
		case strings.Contains(p.System, "planning agent"):
			if strings.Contains(p.User, "Hello") {
				return `{"rationale": "Small talk.", "steps": []}`, nil
			}
			if strings.Contains(p.User, "Translate") {
				return `{"rationale": "Needs translation.", "steps": [{"description": "Translate the notes", "capability": "translate"}]}`, nil
			}
			return `{"rationale": "Answer from the notes.", "steps": [{"description": "` + fact + `", "capability": "query"}]}`, nil
		case strings.Contains(p.System, "educational assistant"):
			return "They are cheap threads scheduled by the runtime.", nil
		}
		return "", errors.New("no critique available")
	}}
}

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	dir := t.TempDir()
	s := config.Default()
	s.Retrieval.DataDir = filepath.Join(dir, "data")
	s.Output.Dir = filepath.Join(dir, "outputs")
	s.Eval.ReportDir = filepath.Join(dir, "reports")
	return s
}

func newTestApp(t *testing.T, s config.Settings, out *bytes.Buffer, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{WithOutput(out)}, opts...)
	app, err := NewApp(context.Background(), s, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func writeDoc(t *testing.T, dir, name, text string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestIngestRunAndReopen(t *testing.T) {
	s := testSettings(t)
	var out bytes.Buffer
	completer := answeringCompleter()

	app, err := NewApp(context.Background(), s, WithOutput(&out), WithCompleter(completer))
	require.NoError(t, err)

	doc := writeDoc(t, t.TempDir(), "go.md", fact)
	stats, err := app.Ingest(context.Background(), []string{doc})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 1, stats.Embedded)
	assert.Contains(t, out.String(), "Ingestion complete")

	res, err := app.RunTask(context.Background(), "What are goroutines?", false)
	require.NoError(t, err)
	assert.Equal(t, agent.StateDone, res.State)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "rag_query", res.Records[0].Action)
	assert.Equal(t, "They are cheap threads scheduled by the runtime.", res.Output())
	assert.Contains(t, out.String(), "rag_query")
	assert.Contains(t, out.String(), "DONE")
	require.NoError(t, app.Close())

	// A second process sees the stored chunks and the recorded history.
	var again bytes.Buffer
	reopened := newTestApp(t, s, &again, WithCompleter(completer))
	assert.Equal(t, 1, reopened.Retriever.Index().Len())
	assert.Equal(t, 1, reopened.Evaluator.Summary().TotalTasks)

	require.NoError(t, reopened.Stats(true))
	assert.Contains(t, again.String(), "Performance summary")
	assert.Contains(t, again.String(), "Report saved to")

	reports, err := filepath.Glob(filepath.Join(s.Eval.ReportDir, "evaluation_report_*.json"))
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestRunTaskFailed(t *testing.T) {
	var out bytes.Buffer
	app := newTestApp(t, testSettings(t), &out, WithCompleter(answeringCompleter()))

	res, err := app.RunTask(context.Background(), "Translate my notes", true)
	require.ErrorIs(t, err, ErrTaskFailed)
	assert.Equal(t, agent.StateFailed, res.State)
	assert.ErrorIs(t, res.Failure, model.ErrCapabilityUnresolved)
	assert.Contains(t, out.String(), "unresolved")
	assert.Contains(t, out.String(), "Report saved to")
}

func TestPlainQuestionAnsweredDirectly(t *testing.T) {
	var out bytes.Buffer
	app := newTestApp(t, testSettings(t), &out, WithCompleter(answeringCompleter()))

	res, err := app.RunTask(context.Background(), "Hello, who are you?", false)
	require.NoError(t, err)
	assert.Equal(t, agent.StateDone, res.State)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "direct_answer", res.Records[0].Action)
	assert.Equal(t, "They are cheap threads scheduled by the runtime.", res.Output())
}

func TestResetAndOutbox(t *testing.T) {
	s := testSettings(t)
	var out bytes.Buffer
	ctx := context.Background()
	app := newTestApp(t, s, &out, WithCompleter(answeringCompleter()))

	_, err := app.Ingest(ctx, []string{writeDoc(t, t.TempDir(), "go.md", fact)})
	require.NoError(t, err)
	require.Equal(t, 1, app.Retriever.Index().Len())

	require.NoError(t, app.Reset(ctx))
	assert.Zero(t, app.Retriever.Index().Len())
	assert.Contains(t, out.String(), "Knowledge base reset: documents")
	stored, err := app.DB.Chunks().LoadChunks(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	id, err := app.DB.Outbox().Send(ctx, model.Message{Recipient: "ada@example.com", Subject: "Weekly notes", Body: "hi"})
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, app.Outbox(ctx))
	assert.Contains(t, out.String(), "Outbox (1 queued)")
	assert.Contains(t, out.String(), "ada@example.com")
	assert.Contains(t, out.String(), id)
}

func TestRunTaskEmpty(t *testing.T) {
	var out bytes.Buffer
	app := newTestApp(t, testSettings(t), &out, WithCompleter(answeringCompleter()))

	_, err := app.RunTask(context.Background(), "   ", false)
	require.Error(t, err)
}

func TestChatCommands(t *testing.T) {
	s := testSettings(t)
	var out bytes.Buffer
	app := newTestApp(t, s, &out, WithCompleter(answeringCompleter()))

	in := strings.NewReader("tools\n\nstats\nWhat are goroutines?\nsave\nquit\nnever reached\n")
	require.NoError(t, app.Chat(context.Background(), in))

	text := out.String()
	assert.Contains(t, text, "send_email")
	assert.Contains(t, text, "Performance summary")
	assert.Contains(t, text, "Report saved to")
	assert.Contains(t, text, "Goodbye!")
	assert.Equal(t, 1, app.Evaluator.Summary().TotalTasks)
}

func TestChatStopsAtEOF(t *testing.T) {
	var out bytes.Buffer
	app := newTestApp(t, testSettings(t), &out, WithCompleter(answeringCompleter()))

	require.NoError(t, app.Chat(context.Background(), strings.NewReader("stats\n")))
	assert.NotContains(t, out.String(), "Goodbye!")
}

func TestIngestDefaultsToDocumentsDir(t *testing.T) {
	s := testSettings(t)
	var out bytes.Buffer
	app := newTestApp(t, s, &out, WithCompleter(answeringCompleter()))

	_, err := app.Ingest(context.Background(), nil)
	require.Error(t, err)

	writeDoc(t, s.Retrieval.DocumentsDir(), "a.txt", fact)
	writeDoc(t, s.Retrieval.DocumentsDir(), "skip.pdf", "binary")
	stats, err := app.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
}

func TestWithoutProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	s := testSettings(t)

	var out bytes.Buffer
	app := newTestApp(t, s, &out)
	assert.Equal(t, 7, app.Registry.Len())

	app.ListTools(true)
	assert.Contains(t, out.String(), "generate_blog_post")
	assert.Contains(t, out.String(), "recipient (string) required")
	require.NoError(t, app.Close())

	_, err := NewApp(context.Background(), s, WithOutput(&out), RequireLLM())
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestUnknownEmbedder(t *testing.T) {
	s := testSettings(t)
	s.Retrieval.Embedder = "word2vec"

	_, err := NewApp(context.Background(), s, WithCompleter(answeringCompleter()))
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "a b", truncateString("a\nb", 10))
	assert.Equal(t, "héllo w...", truncateString("héllo wörld!", 10))
}
