package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	seedHostEmail = "host@example.com"
	seedHostName  = "Default Host"
)

const truncateAllQuery = `
	TRUNCATE TABLE
		task_files,
		task_comments,
		task_dependencies,
		task_assignees,
		tasks,
		team_members,
		subject_participants,
		teams,
		subjects,
		users
	RESTART IDENTITY CASCADE`

func (cli *commandLine) seedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Wipe every table and create the default host " + seedHostEmail + ". The password is prompted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := cli.promptPassword()
			if err != nil {
				return err
			}
			return cli.seed(context.Background(), pwd)
		},
	}
}

func (cli *commandLine) seed(ctx context.Context, pwd string) error {
	if _, err := cli.db.ExecContext(ctx, truncateAllQuery); err != nil {
		return errors.Wrap(err, "clearing database")
	}
	usr, err := cli.usrSvc.CreateHost(ctx, seedHostEmail, seedHostName, pwd)
	if err != nil {
		return errors.Wrap(err, "creating host")
	}
	_, _ = fmt.Fprintf(cli.out, "database seeded, sign in as %s\n", usr.Email)
	return nil
}
