package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/user"
)

func (cli *commandLine) listUsers() error {
	users, err := cli.usrRepo.QueryUsers(context.Background(), user.QueryFilter{}, core.DBOrdering{Field: "id", Ascending: true})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tROLE\tSCORE\tJOINED")
	for _, usr := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			usr.ID, usr.Username, usr.Email, usr.Role, usr.TotalScore, usr.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}
