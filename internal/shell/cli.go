// Package shell is the terminal front end of the console: a cobra command
// tree over the query services, rendering view projections as text.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/basflight/bas-console/internal/config"
	"github.com/basflight/bas-console/internal/query"
	"github.com/basflight/bas-console/internal/services"
	"github.com/basflight/bas-console/internal/state"
	"github.com/basflight/bas-console/internal/views"
)

// Remote is the part of the backend client used outside the query path.
type Remote interface {
	DownloadReport(ctx context.Context, reportID string, w io.Writer) error
	Health(ctx context.Context) (string, error)
}

// App bundles the wired client core a command runs against.
type App struct {
	Config      *config.Config
	Store       *state.Store
	Cache       *query.Cache
	Queries     *services.Queries
	Coordinator *services.Coordinator
	Remote      Remote
	// Metrics serves /metrics in serve mode; nil disables the endpoint.
	Metrics http.Handler
	Logger  *slog.Logger
	Now     func() time.Time
	Close   func() error
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) formatter() views.Formatter {
	return views.NewFormatter(a.Store.Settings().Language)
}

// Bootstrap builds the App once the config path is known.
type Bootstrap func(ctx context.Context, configPath string) (*App, error)

// Options contain configuration for the CLI.
type Options struct {
	Bootstrap Bootstrap
	Output    io.Writer
	ErrOutput io.Writer
}

// CLI represents the command-line interface.
type CLI struct {
	opts       Options
	configPath string
	app        *App
	renderer   *Renderer
	rootCmd    *cobra.Command
}

// NewCLI creates a new CLI instance.
func NewCLI(opts Options) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.ErrOutput == nil {
		opts.ErrOutput = os.Stderr
	}
	cli := &CLI{opts: opts}
	cli.rootCmd = cli.newRootCmd()
	return cli
}

// Root exposes the command tree.
func (cli *CLI) Root() *cobra.Command { return cli.rootCmd }

// Execute runs the command selected by os.Args.
func (cli *CLI) Execute(ctx context.Context) error {
	return cli.rootCmd.ExecuteContext(ctx)
}

// Close releases whatever Bootstrap opened.
func (cli *CLI) Close() error {
	if cli.app == nil {
		return nil
	}
	if cli.app.Queries != nil {
		cli.app.Queries.Close()
	}
	if cli.app.Close != nil {
		return cli.app.Close()
	}
	return nil
}

func (cli *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "bas-console",
		Short:             "UAS flight statistics console",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: cli.boot,
	}
	cmd.SetOut(cli.opts.Output)
	cmd.SetErr(cli.opts.ErrOutput)
	cmd.PersistentFlags().StringVar(&cli.configPath, "config", "", "Path to configuration file (defaults to $BAS_CONFIG)")

	cmd.AddCommand(newRangeCmd(cli))
	cmd.AddCommand(newSettingsCmd(cli))
	cmd.AddCommand(newStatsCmd(cli))
	cmd.AddCommand(newFlightsCmd(cli))
	cmd.AddCommand(newRegionsCmd(cli))
	cmd.AddCommand(newRegionCmd(cli))
	cmd.AddCommand(newDashboardCmd(cli))
	cmd.AddCommand(newUploadCmd(cli))
	cmd.AddCommand(newReportCmd(cli))
	cmd.AddCommand(newDownloadCmd(cli))
	cmd.AddCommand(newHealthCmd(cli))
	cmd.AddCommand(newServeCmd(cli))

	return cmd
}

func (cli *CLI) boot(cmd *cobra.Command, _ []string) error {
	if cli.app != nil {
		return nil
	}
	if cli.opts.Bootstrap == nil {
		return errors.New("no bootstrap configured")
	}
	app, err := cli.opts.Bootstrap(cmd.Context(), cli.configPath)
	if err != nil {
		return err
	}
	if app.Logger == nil {
		app.Logger = slog.Default()
	}
	cli.app = app
	cli.renderer = NewRenderer(cmd.OutOrStdout())

	errOut := cmd.ErrOrStderr()
	app.Coordinator.OnNotify(func(n services.Notice) {
		if !app.Store.Settings().NotificationsEnabled() {
			return
		}
		fmt.Fprintf(errOut, "[%s] %s\n", n.Level, n.Message)
	})
	return nil
}
