package main

import (
	"github.com/spf13/cobra"
)

func (cli *commandLine) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <command> [args]",
		Short: "Run a goose migration command: up, up-by-one, up-to, down, down-to, redo, reset, status, version",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return gooseRunFunc(cli.db, args[0], args[1:]...)
		},
	}
}
