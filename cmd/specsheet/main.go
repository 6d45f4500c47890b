// Command specsheet is the operator entry point for the rule-pack
// compiler and extraction runtime: one binary, one subcommand per
// operation, flag.NewFlagSet per subcommand — the same flag-driven
// shape as the teacher's cmd/cortex, generalized from a single-mode
// daemon to a multi-verb tool the way `go` or `docker` dispatch verbs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

func configureLogger(logLevel string, useDev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

var subcommands = map[string]func(ctx context.Context, logger *slog.Logger, args []string) error{
	"compile":             cmdCompile,
	"validate":            cmdValidate,
	"rules-diff":          cmdRulesDiff,
	"watch-compile":       cmdWatchCompile,
	"init-category":       cmdInitCategory,
	"list-fields":         cmdListFields,
	"field-report":        cmdFieldReport,
	"run":                 cmdRun,
	"run-until-complete":  cmdRunUntilComplete,
	"run-temporal":        cmdRunTemporal,
	"queue-add":           cmdQueueAdd,
	"queue-next":          cmdQueueNext,
	"queue-status":        cmdQueueStatus,
	"batch-start":         cmdBatchStart,
	"batch-status":        cmdBatchStatus,
	"serve-api":           cmdServeAPI,
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: specsheet <command> [flags]")
	fmt.Fprintln(os.Stderr, "commands:")
	names := make([]string, 0, len(subcommands))
	for name := range subcommands {
		names = append(names, name)
	}
	for _, name := range sortedStrings(names) {
		fmt.Fprintf(os.Stderr, "  %s\n", name)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	fn, ok := subcommands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "specsheet: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := configureLogger("info", false)
	slog.SetDefault(logger)

	if err := fn(ctx, logger, os.Args[2:]); err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func sortedStrings(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
