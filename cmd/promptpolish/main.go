// PromptPolish - prompt optimization toolkit.
// One binary hosts the remote proxy, the local bridge relay, the MCP tool
// server and a terminal client for the conversation state machine.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
	"github.com/matiasleandrokruk/promptpolish/internal/infra/config"
	"github.com/matiasleandrokruk/promptpolish/internal/infra/logging"
	"github.com/matiasleandrokruk/promptpolish/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// app is the state shared by every subcommand.
type app struct {
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr, logger: zap.NewNop()}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err) //nolint:errcheck
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "promptpolish",
		Short: "Rewrite prompts for clarity and effect",
		Long: `PromptPolish rewrites prompts through a configurable LLM backend.

  proxy     serve the HTTP optimize endpoint backed by Gemini, OpenAI or Ollama
  bridge    relay WebSocket clients to the proxy
  optimize  polish text from the terminal
  mcp       expose optimize_prompt as an MCP tool over stdio`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			a.logger.Sync() //nolint:errcheck
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file (overrides PROMPTPOLISH_CONFIG)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.proxyCmd(),
		a.bridgeCmd(),
		a.optimizeCmd(),
		a.mcpCmd(),
		a.tokenCmd(),
		a.versionCmd(),
	)
	return root
}

// setup loads configuration and builds the logger before any subcommand runs.
func (a *app) setup(*cobra.Command, []string) error {
	cfg, err := config.LoadWith(a.configPath)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if a.verbose {
		level = "debug"
	}
	logger, err := logging.New(level)
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger

	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Debugf)); err != nil {
		logger.Debug("automaxprocs", zap.Error(err))
	}
	return nil
}

func limitsOf(cfg config.Config) polish.Limits {
	return polish.Limits{
		MaxInputLength:       cfg.MaxInput,
		MaxInstructionLength: cfg.MaxInstruction,
	}
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// version never needs configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
}
