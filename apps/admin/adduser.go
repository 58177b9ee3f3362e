package main

import (
	"context"
	"net/mail"
	"time"

	"github.com/spf13/cobra"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/user"
)

func (cli *commandLine) newAddUserCmd() *cobra.Command {
	var (
		email, name string
		isAdmin     bool
	)
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or update the user owning --email. The password is prompted next.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if core.CleanString(email) == "" {
				_ = cmd.Usage()
				return errHelp
			}
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			usr, err := cli.addUser(cmd.Context(), email, name, pwd, isAdmin)
			if err != nil {
				return err
			}
			cli.logger.Info("user saved", usr, map[string]interface{}{"email": usr.Email, "role": usr.Role})
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "The user's email.")
	cmd.Flags().StringVar(&name, "name", "", "The user's full name.")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "Grant the admin role.")
	return cmd
}

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(ctx context.Context, email, name, pwd string, isAdmin bool) (user.User, error) {
	email = core.CleanString(email, true /* lower */)
	if _, err := mail.ParseAddress(email); err != nil {
		return user.User{}, core.NewValidationError(nil, core.FieldError{Field: "email", Error: "must be a valid email address"})
	}
	name = core.CleanString(name)
	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	found := err == nil
	if err != nil {
		if !core.IsNotFound(err) {
			return user.User{}, err
		}
		usr = user.User{Email: email, Role: user.RoleStudent, CreatedAt: now}
	}
	if name != "" {
		usr.FullName = name
	}
	if isAdmin {
		usr.Role = user.RoleAdmin
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, err
	}

	if found {
		return cli.usrRepo.UpdateUser(ctx, usr)
	}
	return cli.usrRepo.CreateUser(ctx, usr)
}
