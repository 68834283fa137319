package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wudi/pdf2html/config"
	"github.com/wudi/pdf2html/convert"
)

func newInspectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <in.pdf>",
		Short: "Print the page count, page sizes and fonts of a PDF file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(a.v)
			if err != nil {
				return err
			}
			opts.Logger = a.logger
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			info, err := convert.Inspect(cmd.Context(), data, opts)
			if err != nil {
				return fmt.Errorf("inspect %s: %w", args[0], err)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(info); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().String("password", "", "password of an encrypted document")
	cmd.Flags().Bool("strict", false, "fail on the first recoverable error")
	return cmd
}
