package main

import (
	"fmt"
	"io"

	"github.com/danmuck/dgr/internal/config"
	"github.com/spf13/cobra"
)

var cmdConfig = &cobra.Command{
	Use:   "config",
	Short: "Write config templates and show the resolved configuration",
}

var cmdConfigTemplate = &cobra.Command{
	Use:   "template <master|slave|relay>",
	Short: "Write a TOML config template",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigTemplate,
}

var cmdConfigShow = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration after applying the file and environment",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var flagConfigTemplate struct {
	Output string
	Force  bool
}

func init() {
	cmdConfigTemplate.Flags().StringVarP(&flagConfigTemplate.Output, "output", "o", "", "write to this path instead of stdout")
	cmdConfigTemplate.Flags().BoolVar(&flagConfigTemplate.Force, "force", false, "overwrite an existing file")
	bindSyncFlags(cmdConfigShow.Flags())
	cmdConfig.AddCommand(cmdConfigTemplate, cmdConfigShow)
	cmdMain.AddCommand(cmdConfig)
}

func runConfigTemplate(cmd *cobra.Command, args []string) error {
	kind := args[0]
	if flagConfigTemplate.Output == "" {
		template, err := config.Template(kind)
		if err != nil {
			return err
		}
		_, err = io.WriteString(cmd.OutOrStdout(), template)
		return err
	}
	if err := config.WriteTemplate(flagConfigTemplate.Output, kind, flagConfigTemplate.Force); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s config template to %s\n", kind, flagConfigTemplate.Output)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd.Flags(), "")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	role, reason := cfg.Role()
	fmt.Fprintf(out, "# role: %s", role)
	if reason != "" {
		fmt.Fprintf(out, " (%s)", reason)
	}
	fmt.Fprintln(out)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "# invalid: %v\n", err)
	}
	return cfg.WriteTOML(out)
}
