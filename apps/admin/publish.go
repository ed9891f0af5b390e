package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) publish(ctx context.Context, classID, session, term string) error {
	count, err := cli.results.Publish(ctx, cli.actor, classID, session, term)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d results published for %s %s term %s\n", count, classID, session, term)
	return nil
}

func (cli *commandLine) progress(ctx context.Context, studentID, session, term string) error {
	p, err := cli.fees.Progress(ctx, cli.actor, studentID, session, term)
	if err != nil {
		return err
	}
	access := "withheld"
	if p.CanView {
		access = "open"
	}
	fmt.Fprintf(cli.out, "%s (%s) %s term %s: paid %s of %s (%d%%), outstanding %s, results %s\n",
		p.StudentID, p.ClassLevel, p.Session, p.Term, p.Paid.StringFixed(2), p.Required.StringFixed(2), p.Percentage,
		p.Outstanding.StringFixed(2), access)
	return nil
}
