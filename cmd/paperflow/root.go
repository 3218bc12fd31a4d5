package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/paperflow/pkg/paperflow/config"
	"github.com/randalmurphal/paperflow/pkg/paperflow/observability"
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// load reads the settings file and applies flag overrides.
func (o *globalOptions) load() (config.Settings, error) {
	settings, err := config.Load(o.configPath)
	if err != nil {
		return config.Settings{}, err
	}
	if o.logLevel != "" {
		settings.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		settings.Log.Format = o.logFormat
	}
	return settings, settings.Validate()
}

func (o *globalOptions) logger(s config.Settings) *slog.Logger {
	return observability.NewLogger(o.errOut, s.Log.Level, s.Log.Format)
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	opts := &globalOptions{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "paperflow",
		Short:         "Search, read and summarize research papers into a report",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "settings file (.yaml, .yml or .json)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(newRunCmd(opts), newResumeCmd(opts))
	return root
}
