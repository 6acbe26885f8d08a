package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/additionsec/as-gateway/pkg/cti"
	"github.com/additionsec/as-gateway/probe/internal/config"
	"github.com/additionsec/as-gateway/probe/internal/delivery"
	"github.com/additionsec/as-gateway/probe/internal/scenario"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the scenario catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tEXPECT\tDESCRIPTION")
			for _, s := range scenario.Catalog() {
				fmt.Fprintf(w, "%s\t%d\t%s\n", s.Name, s.Expect(), s.Description)
			}
			return w.Flush()
		},
	}
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <file.pb>",
		Short: "Print a serialized report as JSON",
		Long:  "Decode reads a payload written by run's dump_dir and prints it as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}
			out, err := cti.ToJSON(b)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}

func newSendCmd(level *slog.LevelVar) *cobra.Command {
	var (
		opts   runOptions
		expect int
	)
	cmd := &cobra.Command{
		Use:   "send <file.pb>",
		Short: "Replay a dumped payload to the target",
		Long: "Send POSTs a payload written by run's dump_dir to the target once and\n" +
			"exits non-zero unless the collector answers with the expected status.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			level.Set(parseLevel(cfg.LogLevel))

			client, err := delivery.New(cfg.Target)
			if err != nil {
				return err
			}
			status, err := client.Send(cmd.Context(), cfg.Target.URI, payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d %s (%d bytes)\n",
				args[0], status, http.StatusText(status), len(payload))
			return delivery.CheckStatus(status, expect)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "path to probe YAML config (default: environment only)")
	f.StringVar(&opts.target, "target", "", "collector URI, overrides config and $"+config.DefaultURIEnv)
	f.BoolVar(&opts.insecure, "insecure", false, "skip TLS certificate verification for the target")
	f.IntVar(&expect, "expect", scenario.DefaultExpectStatus, "expected HTTP status")
	return cmd
}
