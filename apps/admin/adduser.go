package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname)
	email = core.CleanString(email, true /* lower */)

	if err := user.ValidatePassword(pwd, uname, email); err != nil {
		return err
	}

	hash, err := user.HashPassword(pwd)
	if err != nil {
		return err
	}

	usr, err := cli.findUser(ctx, uname, email)
	created := false
	switch {
	case errors.Cause(err) == user.ErrNotFound:
		role := user.RoleStudent
		if isAdmin {
			role = user.RoleAdmin
		}
		usr, err = cli.usrRepo.CreateUser(ctx, user.User{
			Username:     uname,
			Email:        email,
			PasswordHash: hash,
			Role:         role,
			CreatedAt:    time.Now().UTC(),
		})
		created = true
	case err != nil:
		return err
	default:
		if usr, err = cli.usrRepo.UpdatePassword(ctx, usr.ID, hash); err == nil && isAdmin {
			usr, err = cli.usrRepo.UpdateRole(ctx, usr.ID, user.RoleAdmin)
		}
	}
	if err != nil {
		return err
	}

	verb := "updated"
	if created {
		verb = "created"
	}
	fmt.Fprintf(cli.out, "user %s (%s) %s with role %s\n", usr.Username, usr.Email, verb, usr.Role)
	return nil
}

// findUser looks a user up by username, then by email.
func (cli *commandLine) findUser(ctx context.Context, uname, email string) (user.User, error) {
	usr, err := cli.usrRepo.GetUserByUsername(ctx, uname)
	if errors.Cause(err) == user.ErrNotFound {
		return cli.usrRepo.GetUserByEmail(ctx, email)
	}
	return usr, err
}
