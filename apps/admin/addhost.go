package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trezcool/kazi/core/user"
)

func (cli *commandLine) addHostCommand() *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "addhost",
		Short: "Create a host account, or promote an existing user to host. The password is prompted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := cli.promptPassword()
			if err != nil {
				return err
			}
			return cli.addHost(email, name, pwd)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "the host's email")
	cmd.Flags().StringVar(&name, "name", "", "the host's full name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// addHost applies the registration rules, password policy included, before creating the host.
func (cli *commandLine) addHost(email, name, pwd string) error {
	nu := user.NewUser{Email: email, FirstName: name, Password: pwd, Role: user.RoleHost}
	if err := nu.Validate(cli.validate); err != nil {
		return err
	}
	usr, err := cli.usrSvc.CreateHost(context.Background(), nu.Email, nu.Name(), nu.Password)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "host %s <%s> ready\n", usr.Name, usr.Email)
	return nil
}
