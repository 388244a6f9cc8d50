// Package cli implements the dataeng command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dataeng/internal/config"
	"dataeng/internal/etl"
	"dataeng/internal/etl/sources"
	"dataeng/internal/logging"
	"dataeng/internal/service"
	"dataeng/internal/storage"
)

// Version is set at build time.
var Version = "dev"

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCmd builds the dataeng command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "dataeng",
		Short:         "dataeng runs declarative extract, transform and load pipelines.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(flags.logLevel, flags.logFormat)
		},
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultPath, "pipelines file (json5)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "text", "log format: text, json")

	root.AddCommand(
		newRunCmd(flags),
		newListCmd(flags),
		newQueryCmd(flags),
		newHistoryCmd(flags),
		newServeCmd(flags),
		newMCPCmd(flags),
	)
	return root
}

// Execute runs the command line until it finishes or the process is interrupted.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return NewRootCmd().ExecuteContext(ctx)
}

// app is everything a command needs, built from the configuration file.
type app struct {
	cfg     *config.Config
	svc     *service.PipelineService
	history *storage.DB
}

func (a *app) Close() error {
	if a.history == nil {
		return nil
	}
	return a.history.Close()
}

func loadApp(flags *globalFlags, emitter service.EventEmitter) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config %s not found", flags.configPath)
		}
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &app{cfg: cfg}
	opts := service.Options{
		Pipelines:  cfg.Pipelines,
		Stores:     cfg.StoreOpener,
		LoadRates:  sources.LoadRates,
		Env:        etl.Env{HTTPTimeout: cfg.HTTPTimeoutDuration()},
		Emitter:    emitter,
		RunTimeout: cfg.RunTimeoutDuration(),
	}
	if path := cfg.HistoryPath(); path != "" {
		db, err := storage.New(path)
		if err != nil {
			return nil, fmt.Errorf("open run history: %w", err)
		}
		a.history = db
		opts.History = storage.NewRunStore(db)
	}

	a.svc, err = service.NewPipelineService(opts)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	return a, nil
}
