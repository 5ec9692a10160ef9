// Package main provides the scribe CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/scribe/cli"
	"github.com/richinex/scribe/config"
	"github.com/richinex/scribe/internal/logging"
	"github.com/richinex/scribe/model"
)

// Exit codes.
const (
	exitError      = 1
	exitTaskFailed = 2
)

var (
	// Global flags
	cfgFile string
	debug   bool

	v = config.New()
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "scribe",
		Short: "Task agent over a private knowledge base",
		Long: `A CLI for an autonomous task agent.

Each task is planned into capability-tagged steps, mapped onto registered
actions (knowledge base answers, content generation, email), executed,
critiqued and scored. Scores accumulate into a persisted performance history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(debug)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml or json)")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	flags.StringP("llm", "p", "", "LLM provider (openai, anthropic, deepseek, gemini)")
	flags.String("model", "", "model name, provider default when empty")
	flags.Float64("temperature", 0.7, "sampling temperature")
	flags.String("data-dir", "data", "knowledge base directory")
	flags.String("collection", "documents", "knowledge base collection name")
	flags.IntP("top-k", "k", 5, "passages retrieved per query")
	flags.Float64("min-similarity", 0, "minimum passage similarity")

	for key, flag := range map[string]string{
		"llm.provider":             "llm",
		"llm.model":                "model",
		"llm.temperature":          "temperature",
		"retrieval.data_dir":       "data-dir",
		"retrieval.collection":     "collection",
		"retrieval.top_k":          "top-k",
		"retrieval.min_similarity": "min-similarity",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "bind %s flag: %v\n", flag, err)
			os.Exit(exitError)
		}
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(outboxCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, cli.ErrTaskFailed) {
		return exitTaskFailed
	}
	switch {
	case errors.Is(err, model.ErrConfiguration):
		fmt.Fprintln(os.Stderr, "Configuration error:", err)
	case errors.Is(err, model.ErrDimensionMismatch):
		fmt.Fprintln(os.Stderr, "Dimension mismatch:", err)
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return exitError
}

// openApp loads settings and wires the application.
func openApp(cmd *cobra.Command, opts ...cli.Option) (*cli.App, error) {
	settings, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	return cli.NewApp(cmd.Context(), settings, opts...)
}

func runCmd() *cobra.Command {
	var report bool

	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Execute one task",
		Long: `Execute one task through planning, action selection, execution,
reflection and evaluation. Exits with status 2 when the task ends FAILED.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, cli.RequireLLM())
			if err != nil {
				return err
			}
			defer app.Close()

			_, err = app.RunTask(cmd.Context(), args[0], report)
			return err
		},
	}

	cmd.Flags().BoolVar(&report, "report", false, "save the evaluation report after the task")

	return cmd
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive mode",
		Long: `Start interactive mode. Every line runs as a task, except:
  tools   list registered actions
  stats   show the performance summary
  save    save the evaluation report
  quit    leave (also exit)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, cli.RequireLLM())
			if err != nil {
				return err
			}
			defer app.Close()

			return app.Chat(cmd.Context(), os.Stdin)
		},
	}
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [paths...]",
		Short: "Add documents to the knowledge base",
		Long: `Chunk, embed and store .txt and .md files. Directories are walked.
Without paths the documents directory inside --data-dir is ingested.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			_, err = app.Ingest(cmd.Context(), args)
			return err
		},
	}
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List registered actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			app.ListTools(verboseTools)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "show action inputs")

	return cmd
}

func statsCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the performance summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			return app.Stats(save)
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "also save the evaluation report")

	return cmd
}

func outboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outbox",
		Short: "List queued email messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			return app.Outbox(cmd.Context())
		},
	}
}

func resetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every ingested chunk of the collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("reset deletes the whole collection; pass --yes to confirm")
			}
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			return app.Reset(cmd.Context())
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")

	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "scribe.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})

	return cmd
}
