package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/trezcool/masomo-results/core/compilation"
)

func (cli *commandLine) scan(ctx context.Context) error {
	created, err := cli.scheduler.Scan(ctx)
	if err != nil {
		return err
	}
	if len(created) == 0 {
		fmt.Fprintln(cli.out, "nothing to compile")
		return nil
	}
	return cli.printJobs(created)
}

func (cli *commandLine) listJobs(ctx context.Context, statuses []compilation.JobStatus) error {
	jobs, err := cli.scheduler.Jobs(ctx, cli.actor, compilation.JobFilter{Statuses: statuses})
	if err != nil {
		return err
	}
	return cli.printJobs(jobs)
}

func (cli *commandLine) retry(ctx context.Context, id string) error {
	job, err := cli.scheduler.Retry(ctx, cli.actor, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "job %s requeued for %s (attempt %d)\n", job.ID, job.Group(), job.Attempts+1)
	return nil
}

func (cli *commandLine) printJobs(jobs []compilation.Job) error {
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tGROUP\tSTATUS\tPROGRESS\tATTEMPTS\tERRORS")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%% (%d/%d)\t%d\t%s\n",
			j.ID, j.Group(), j.Status, j.Progress, j.ProcessedStudents, j.TotalStudents, j.Attempts, strings.Join(j.Errors, "; "))
	}
	return w.Flush()
}
