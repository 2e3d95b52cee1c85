// Package cli implements the charlist-tui command line.
package cli

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pitabwire/charlist/internal/config"
	"github.com/pitabwire/charlist/internal/controller"
	"github.com/pitabwire/charlist/internal/fetcher"
	"github.com/pitabwire/charlist/internal/observability"
	"github.com/pitabwire/charlist/internal/tui"
	"github.com/pitabwire/charlist/model"
)

// Build information, set by main.
var (
	Version = "dev"
	Commit  = "unknown"
)

type options struct {
	configPath string
	logFile    string
	mock       bool
	fail       bool
}

func Execute() error {
	return NewRoot().Execute()
}

var runTUI = func(m tui.Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func NewRoot() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "charlist-tui",
		Short:         "Browse Rick and Morty characters in the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.build()
			if err != nil {
				return err
			}
			defer env.close()

			m := tui.New(env.ctrl)
			defer m.Close()
			return runTUI(m)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to configuration file")
	flags.StringVar(&opts.logFile, "log-file", "", "write JSON logs to this file")
	flags.BoolVar(&opts.mock, "mock", false, "serve two fixed characters instead of calling the API")
	flags.BoolVar(&opts.fail, "error", false, "fail every page fetch with a client error")
	root.MarkFlagsMutuallyExclusive("mock", "error")

	root.AddCommand(listCmd(opts), versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "charlist-tui %s (%s)\n", Version, Commit)
		},
	}
}

// environment is one controller with the collaborators it was built from.
type environment struct {
	ctrl   *controller.Controller
	logger *zap.Logger
}

func (e *environment) close() {
	e.ctrl.Close()
	_ = e.logger.Sync()
}

func (o *options) build() (*environment, error) {
	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if o.logFile != "" {
		logger, err = observability.NewFileLogger(cfg.Observability, o.logFile)
		if err != nil {
			return nil, fmt.Errorf("cli: opening log file: %w", err)
		}
	}

	pages, err := o.fetcher(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	ctrl := controller.New(pages,
		controller.WithLogger(logger),
		controller.WithFetchTimeout(cfg.Sessions.FetchTimeout),
		controller.WithQueueSize(cfg.Sessions.QueueSize),
	)
	return &environment{ctrl: ctrl, logger: logger}, nil
}

func (o *options) fetcher(cfg *config.Config, logger *zap.Logger) (model.PageFetcher, error) {
	switch {
	case o.mock && o.fail:
		return nil, errors.New("cli: --mock and --error are mutually exclusive")
	case o.mock:
		return fetcher.NewMockFetcher(), nil
	case o.fail:
		return fetcher.NewErrorFetcher(), nil
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(cfg.API, fetcher.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return fetcher.NewCachingFetcher(httpFetcher, cfg.API.Cache.TTL, cfg.API.Cache.MaxEntries, nil, logger), nil
}
