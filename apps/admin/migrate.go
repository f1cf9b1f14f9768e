package main

import (
	"context"

	"github.com/trezcool/codedays/storage/database"
)

var gooseRunFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNeedsSQL
	}
	return gooseRunFunc(context.Background(), cli.db, args[0], args[1:]...)
}
