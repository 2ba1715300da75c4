package main

import (
	"fmt"
	"os"

	"github.com/danmuck/dgr/internal/logging"
	"github.com/spf13/cobra"
)

var cmdMain = &cobra.Command{
	Use:               "dgrctl",
	Short:             "Replicate named variables from a master process to slaves over UDP",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

var flagMain struct {
	Config      string
	LogLevel    string
	MetricsAddr string
}

func init() {
	pf := cmdMain.PersistentFlags()
	pf.StringVarP(&flagMain.Config, "config", "c", "", "TOML config file; DGR_* environment variables override it")
	pf.StringVar(&flagMain.LogLevel, "log-level", "", "trace|debug|info|warn|error (default from "+logging.EnvLogLevel+")")
	pf.StringVar(&flagMain.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9570")
}

func main() {
	if err := cmdMain.Execute(); err != nil {
		fatalf("%v", err)
	}
}

func setupLogging(*cobra.Command, []string) error {
	logging.ConfigureRuntime()
	if flagMain.LogLevel != "" && !logging.SetLevel(flagMain.LogLevel) {
		return fmt.Errorf("unknown log level %q", flagMain.LogLevel)
	}
	return nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
