package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/additionsec/as-gateway/probe/internal/config"
	"github.com/additionsec/as-gateway/probe/internal/delivery"
	"github.com/additionsec/as-gateway/probe/internal/export"
	"github.com/additionsec/as-gateway/probe/internal/scenario"
)

type runOptions struct {
	configPath string
	target     string
	scenarios  []string
	insecure   bool
	watch      bool
}

func newRunCmd(level *slog.LevelVar) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scenario catalog against the target",
		Long: "Run sends every selected scenario once, in catalog order, and exits\n" +
			"non-zero if any scenario did not receive its expected status.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScenarios(cmd.Context(), opts, level)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "path to probe YAML config (default: environment only)")
	f.StringVar(&opts.target, "target", "", "collector URI, overrides config and $"+config.DefaultURIEnv)
	f.StringArrayVarP(&opts.scenarios, "scenario", "s", nil, "scenario to run (repeatable, default all)")
	f.BoolVar(&opts.insecure, "insecure", false, "skip TLS certificate verification for the target")
	f.BoolVar(&opts.watch, "watch", false, "re-run whenever the config file changes (requires --config)")
	return cmd
}

func (o runOptions) overrides() []config.Override {
	return []config.Override{
		config.WithTarget(o.target),
		config.WithScenarios(o.scenarios),
		config.WithInsecure(o.insecure),
	}
}

func runScenarios(ctx context.Context, opts runOptions, level *slog.LevelVar) error {
	if opts.watch && opts.configPath == "" {
		return errors.New("--watch requires --config")
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	level.Set(parseLevel(cfg.LogLevel))

	sum, err := runOnce(ctx, cfg)
	if err != nil {
		return err
	}

	if !opts.watch {
		if !sum.OK() {
			return errScenariosFailed
		}
		return nil
	}

	err = config.Watch(ctx, opts.configPath, func(updated *config.Config) {
		level.Set(parseLevel(updated.LogLevel))
		if _, err := runOnce(ctx, updated); err != nil {
			slog.Error("probe: re-run after config change failed", "err", err)
		}
	}, opts.overrides()...)
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	return nil
}

// loadConfig reads the config file when one is given, else the environment.
func loadConfig(opts runOptions) (*config.Config, error) {
	if opts.configPath != "" {
		return config.Load(opts.configPath, opts.overrides()...)
	}
	return config.FromEnv(opts.overrides()...)
}

// runOnce builds the client and scenario list from cfg, runs them, and
// writes the configured outputs.
func runOnce(ctx context.Context, cfg *config.Config) (*scenario.Summary, error) {
	client, err := delivery.New(cfg.Target)
	if err != nil {
		return nil, err
	}

	catalog, err := scenario.ApplyExpectations(scenario.Catalog(), cfg.Scenarios.Expect)
	if err != nil {
		return nil, err
	}
	selected, err := scenario.Select(catalog, cfg.Scenarios.Include)
	if err != nil {
		return nil, err
	}

	slog.Info("probe: starting run", "target", cfg.Target.URI, "scenarios", len(selected))
	sum := scenario.NewDriver(client, cfg.Target.URI,
		scenario.WithDumpDir(cfg.Output.DumpDir),
	).Run(ctx, selected)

	if sum.Cert = delivery.CheckCert(ctx, cfg.Target); sum.Cert != nil {
		slog.Info("probe: target certificate",
			"status", sum.Cert.Status,
			"subject", sum.Cert.Subject,
			"days_left", sum.Cert.DaysLeft,
		)
	}

	if path := cfg.Output.MetricsFile; path != "" {
		if err := export.WriteMetricsFile(path, sum); err != nil {
			slog.Error("probe: write metrics file", "path", path, "err", err)
		}
	}
	if path := cfg.Output.JSONFile; path != "" {
		if err := export.WriteJSONFile(path, sum); err != nil {
			slog.Error("probe: write json summary", "path", path, "err", err)
		}
	}
	return sum, nil
}
