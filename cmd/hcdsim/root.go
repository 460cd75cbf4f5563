package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ardnew/softhcd/pkg"
)

type rootOptions struct {
	logLevel  string
	logFormat string
	logFile   string
	plain     bool
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	var logSink io.Closer

	cmd := &cobra.Command{
		Use:           "hcdsim",
		Short:         "Exercise the USB host channel engine against a simulated core",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, ok := levels[strings.ToLower(opts.logLevel)]
			if !ok {
				return fmt.Errorf("%w: log level %q", pkg.ErrInvalidParameter, opts.logLevel)
			}
			pkg.SetLogLevel(level)

			var w io.Writer = cmd.ErrOrStderr()
			if opts.logFile != "" {
				lj := &lumberjack.Logger{
					Filename:   opts.logFile,
					MaxSize:    10,
					MaxBackups: 3,
				}
				w, logSink = lj, lj
			}
			pkg.SetLogOutput(w, pkg.ParseLogFormat(opts.logFormat))
			pkg.LogDebug(pkg.ComponentCLI, "logging configured",
				"level", level, "format", opts.logFormat, "file", opts.logFile)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if logSink != nil {
				return logSink.Close()
			}
			return nil
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.logLevel, "log-level", "warn", "minimum log level (debug, info, warn, error)")
	f.StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")
	f.StringVar(&opts.logFile, "log-file", "", "write logs to a rotated file instead of stderr")
	f.BoolVar(&opts.plain, "plain", false, "disable styled table output")

	cmd.AddCommand(newRunCmd(opts), newProfilesCmd(opts), newVersionCmd())
	return cmd
}
