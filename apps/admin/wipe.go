package main

import (
	"context"
	"fmt"
)

// wipe deletes all course content and every non-admin user.
func (cli *commandLine) wipe(yes bool) error {
	if !yes {
		ok, err := cli.confirm("This deletes all course content and every non-admin user. Continue?")
		if err != nil {
			return err
		}
		if !ok {
			return errAborted
		}
	}

	counts, err := cli.siteSvc.Reset(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "deleted: %s\n", counts)
	return nil
}
