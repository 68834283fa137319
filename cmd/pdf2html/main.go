// Command pdf2html converts PDF documents to HTML bundles.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wudi/pdf2html/config"
	"github.com/wudi/pdf2html/observability"
)

// version is set at build time via ldflags.
var version = "dev"

// app is the state shared by subcommands once flags are parsed.
type app struct {
	v      *viper.Viper
	logger observability.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: observability.NopLogger{}}
	var cfgFile string
	root := &cobra.Command{
		Use:           "pdf2html",
		Short:         "Convert PDF documents to HTML",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.New(cfgFile)
			if err != nil {
				return err
			}
			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			logCfg := config.Logging(v)
			logCfg.Output = cmd.ErrOrStderr()
			a.v = v
			a.logger = observability.NewZerologLogger(logCfg)
			if used := v.ConfigFileUsed(); used != "" {
				a.logger.Debug("using config file", observability.String("path", used))
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./pdf2html.yaml or ~/.config/pdf2html/pdf2html.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().String("log-format", "console", "log format: console or json")

	root.AddCommand(newConvertCmd(a), newInspectCmd(a), newVersionCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "pdf2html: %v\n", err)
		stop()
		os.Exit(1)
	}
}
