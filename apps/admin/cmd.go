package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/trezcool/masomo-results/core/compilation"
	"github.com/trezcool/masomo-results/core/fee"
	"github.com/trezcool/masomo-results/core/result"
	"github.com/trezcool/masomo-results/core/user"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	out       io.Writer
	actor     user.User
	results   *result.Service
	fees      *fee.Service
	scheduler *compilation.Scheduler
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  scan - queue compilation jobs for the submitted groups")
	fmt.Fprintln(cli.out, "  jobs [-status pending,failed] - list compilation jobs")
	fmt.Fprintln(cli.out, "  retry -id JOB_ID - requeue a failed compilation job")
	fmt.Fprintln(cli.out, "  publish -class CLASS -session YYYY/YYYY -term TERM - publish the approved results of a class")
	fmt.Fprintln(cli.out, "  progress -student STUDENT -session YYYY/YYYY -term TERM - show a student's fee progress")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	scanCmd := flag.NewFlagSet("scan", flag.ExitOnError)

	jobsCmd := flag.NewFlagSet("jobs", flag.ExitOnError)
	jobsStatus := jobsCmd.String("status", "", "Comma separated statuses to list (pending, processing, completed, failed).")

	retryCmd := flag.NewFlagSet("retry", flag.ExitOnError)
	retryID := retryCmd.String("id", "", "The failed job's ID.")

	publishCmd := flag.NewFlagSet("publish", flag.ExitOnError)
	publishClass := publishCmd.String("class", "", "The class to publish.")
	publishSession := publishCmd.String("session", "", "The academic session, e.g. 2023/2024.")
	publishTerm := publishCmd.String("term", "", "The term.")

	progressCmd := flag.NewFlagSet("progress", flag.ExitOnError)
	progressStudent := progressCmd.String("student", "", "The student's ID.")
	progressSession := progressCmd.String("session", "", "The academic session, e.g. 2023/2024.")
	progressTerm := progressCmd.String("term", "", "The term.")

	switch args[1] {
	case "scan":
		if err := scanCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.scan(ctx)
	case "jobs":
		if err := jobsCmd.Parse(args[2:]); err != nil {
			return err
		}
		statuses, err := parseStatuses(*jobsStatus)
		if err != nil {
			return err
		}
		return cli.listJobs(ctx, statuses)
	case "retry":
		if err := retryCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *retryID == "" {
			retryCmd.Usage()
			return errHelp
		}
		return cli.retry(ctx, *retryID)
	case "publish":
		if err := publishCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *publishClass == "" || *publishSession == "" || *publishTerm == "" {
			publishCmd.Usage()
			return errHelp
		}
		return cli.publish(ctx, *publishClass, *publishSession, *publishTerm)
	case "progress":
		if err := progressCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *progressStudent == "" || *progressSession == "" || *progressTerm == "" {
			progressCmd.Usage()
			return errHelp
		}
		return cli.progress(ctx, *progressStudent, *progressSession, *progressTerm)
	default:
		cli.printUsage()
		return errHelp
	}
}

func parseStatuses(s string) ([]compilation.JobStatus, error) {
	var statuses []compilation.JobStatus
	for _, part := range strings.Split(s, ",") {
		st := compilation.JobStatus(strings.ToLower(strings.TrimSpace(part)))
		switch st {
		case "":
			continue
		case compilation.JobPending, compilation.JobProcessing, compilation.JobCompleted, compilation.JobFailed:
			statuses = append(statuses, st)
		default:
			return nil, fmt.Errorf("unknown job status %q", part)
		}
	}
	return statuses, nil
}
