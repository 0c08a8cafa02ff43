package main

import (
	"database/sql"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/kazi/core/user"
	"github.com/trezcool/kazi/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword      // mockable
	gooseRunFunc     = database.RunMigrations // mockable

	errNoPassword = errors.New("password required")
)

type commandLine struct {
	db       *sql.DB
	usrSvc   user.Service
	validate *validator.Validate
	out      io.Writer
}

func (cli *commandLine) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "admin",
		Short:         "Kazi operator commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(cli.out)
	cmd.SetErr(cli.out)

	cmd.AddCommand(cli.migrateCommand())
	cmd.AddCommand(cli.addHostCommand())
	cmd.AddCommand(cli.resetPasswordCommand())
	cmd.AddCommand(cli.seedCommand())
	return cmd
}

// run executes the command line; args excludes the program name.
func (cli *commandLine) run(args []string) error {
	cmd := cli.rootCommand()
	cmd.SetArgs(args)
	return cmd.Execute()
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword() (string, error) {
	_, _ = fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.out)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if len(pwd) == 0 {
		return "", errNoPassword
	}
	return string(pwd), nil
}
