package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"materialcore/internal/config"
	"materialcore/internal/core"
)

// app holds the per-invocation wiring shared by the subcommands.
type app struct {
	stdout, stderr io.Writer

	v       *viper.Viper
	cfgFile string

	cfg     config.Config
	logger  *slog.Logger
	metrics *prometheus.Registry
	svc     *core.Service
	closeDB func() error
}

// run executes one CLI invocation and releases the store afterwards, also
// when the command failed.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{stdout: stdout, stderr: stderr, v: config.New()}
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if closeErr := a.close(); err == nil {
		err = closeErr
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "materialcore",
		Short:        "Material composition engine",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (YAML); MATERIALCORE_* variables override it")
	flags.String("storage-driver", "", "storage backend: memory, sqlite or postgres")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	_ = a.v.BindPFlag("storage.driver", flags.Lookup("storage-driver"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddCommand(
		newBootstrapCmd(a),
		newMaterialCmd(a),
		newProfileCmd(a),
		newExportCmd(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger, err = newLogger(a.stderr, cfg.Log)
	if err != nil {
		return err
	}
	store, closeDB, err := core.OpenPersistentStore(cmd.Context(), cfg.StorageConfig(), nil)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	a.closeDB = closeDB
	a.metrics = prometheus.NewRegistry()
	a.svc = core.NewService(store,
		core.WithLogger(a.logger),
		core.WithAuditRecorder(core.LoggerAuditRecorder{Logger: a.logger}),
		core.WithMetricsRecorder(core.NewPrometheusMetricsRecorder(a.metrics)),
		core.WithDefaultOwner(cfg.Registry.DefaultOwner),
	)
	a.logger.Debug("store opened", "driver", cfg.Storage.Driver, "config", a.v.ConfigFileUsed())
	return nil
}

func (a *app) close() error {
	if a.closeDB == nil {
		return nil
	}
	a.logMetrics()
	err := a.closeDB()
	a.closeDB = nil
	return err
}

// logMetrics reports the operation counters of this invocation at debug level.
func (a *app) logMetrics() {
	families, err := a.metrics.Gather()
	if err != nil {
		a.logger.Warn("gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			args := []any{"metric", mf.GetName()}
			for _, l := range m.GetLabel() {
				args = append(args, l.GetName(), l.GetValue())
			}
			if c := m.GetCounter(); c != nil {
				args = append(args, "value", c.GetValue())
			}
			if h := m.GetHistogram(); h != nil {
				args = append(args, "count", h.GetSampleCount(), "sum_seconds", h.GetSampleSum())
			}
			a.logger.Debug("metric", args...)
		}
	}
}

func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
