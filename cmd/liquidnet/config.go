package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"liquidnet/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage config files",
}

var configInitCmd = &cobra.Command{
	Use:   "init <server|client> [path]",
	Short: "Write an annotated config file",
	Long: `Write an annotated config file with the default values. Without a path
the file is printed instead. Existing files are never overwritten.`,
	Args:      cobra.RangeArgs(1, 2),
	ValidArgs: []string{"server", "client"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			body, err := config.Template(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), body)
			return nil
		}
		if err := config.WriteTemplate(args[1], args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s config to %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}
