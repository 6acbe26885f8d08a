package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

// errScenariosFailed makes the process exit non-zero without extra output;
// the failing scenarios have already been logged.
var errScenariosFailed = errors.New("one or more scenarios failed")

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(level).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errScenariosFailed) {
			slog.Error("probe failed", "err", err)
		}
		cancel()
		os.Exit(1)
	}
}

func newRootCmd(level *slog.LevelVar) *cobra.Command {
	root := &cobra.Command{
		Use:   "probe",
		Short: "Send boundary-case CTI reports to a collector",
		Long: "probe builds CTI reports with oversized or repeated fields, POSTs each one\n" +
			"to a collector endpoint once, and checks the HTTP status it returns.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newRunCmd(level))
	root.AddCommand(newListCmd())
	root.AddCommand(newDecodeCmd())
	root.AddCommand(newSendCmd(level))
	return root
}

// parseLevel maps a config log level onto slog. Unknown values fall back to
// info; config validation rejects them before this is reached.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
