package terminal

import (
	"context"
	"io"
	"os"

	"github.com/de-tools/variance-atlas/pkg/runtime/app"
	"github.com/de-tools/variance-atlas/pkg/runtime/terminal/commands"
	"github.com/de-tools/variance-atlas/pkg/runtime/terminal/export"
	"github.com/de-tools/variance-atlas/pkg/services/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// CLI represents the command-line interface
type CLI struct {
	connect  commands.Connect
	reporter *export.Reporter
	logOut   io.Writer
	rootCmd  *cobra.Command

	configPath string
	backend    *commands.Backend
	app        *app.App
}

// Options contain configuration for the CLI
type Options struct {
	Output io.Writer
	// LogOutput receives log lines. Defaults to stderr.
	LogOutput io.Writer
	// Connect overrides how commands reach the services. By default the
	// configuration named by --config is loaded and the application is
	// wired from it.
	Connect commands.Connect
}

// NewCLI creates a new CLI instance
func NewCLI(opts Options) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}

	cli := &CLI{
		reporter: export.NewReporter(opts.Output),
		logOut:   opts.LogOutput,
		connect:  opts.Connect,
	}
	if cli.connect == nil {
		cli.connect = cli.connectApp
	}

	cli.rootCmd = cli.newRootCmd()
	cli.rootCmd.SetOut(opts.Output)
	return cli
}

func (cli *CLI) Execute(ctx context.Context) error {
	defer cli.close()
	return cli.rootCmd.ExecuteContext(ctx)
}

// SetArgs replaces the command line arguments.
func (cli *CLI) SetArgs(args []string) {
	cli.rootCmd.SetArgs(args)
}

func (cli *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "atlas",
		Short:         "Variance commentary for financial ledgers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&cli.configPath, "config", "c", "",
		"Path to the configuration file (default ./atlas.yaml)")
	cmd.PersistentFlags().Bool(commands.JSONFlag, false, "Print results as JSON")

	cmd.AddCommand(commands.NewReportsCmd(cli.connect, cli.reporter))
	cmd.AddCommand(commands.NewPeriodsCmd(cli.connect, cli.reporter))
	cmd.AddCommand(commands.NewSummaryCmd(cli.connect, cli.reporter))
	cmd.AddCommand(commands.NewAttributeCmd(cli.connect, cli.reporter))
	cmd.AddCommand(commands.NewCommentaryCmd(cli.connect, cli.reporter))
	cmd.AddCommand(commands.NewAskCmd(cli.connect, cli.reporter))
	cmd.AddCommand(commands.NewIngestCmd(cli.connect, cli.reporter))

	return cmd
}

func (cli *CLI) connectApp(cmd *cobra.Command) (*commands.Backend, error) {
	if cli.backend != nil {
		return cli.backend, nil
	}

	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := app.NewLogger(cfg.Log, cli.logOut)
	if err != nil {
		return nil, err
	}

	ctx := logger.WithContext(cmd.Context())
	cmd.SetContext(ctx)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cli.app = a
	cli.backend = &commands.Backend{Commentary: a.Commentary, Ingest: a.Ingest}
	return cli.backend, nil
}

func (cli *CLI) close() {
	if cli.app == nil {
		return
	}
	if err := cli.app.Close(); err != nil {
		zerolog.Ctx(cli.rootCmd.Context()).Warn().Err(err).Msg("failed to close application")
	}
}
