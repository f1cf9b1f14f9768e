package main

import (
	"context"
	"fmt"

	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/user"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname))
	if err != nil {
		return err
	}
	if err = user.ValidatePassword(pwd, usr.Username, usr.Email); err != nil {
		return err
	}
	hash, err := user.HashPassword(pwd)
	if err != nil {
		return err
	}
	if _, err = cli.usrRepo.UpdatePassword(ctx, usr.ID, hash); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "password of %s updated\n", usr.Username)
	return nil
}
