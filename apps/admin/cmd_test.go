package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-results/apps/di"
	"github.com/trezcool/masomo-results/core"
	"github.com/trezcool/masomo-results/core/compilation"
	"github.com/trezcool/masomo-results/core/fee"
	"github.com/trezcool/masomo-results/core/result"
	"github.com/trezcool/masomo-results/core/user"
	testutil "github.com/trezcool/masomo-results/tests"
)

var testKey = result.GroupKey{ClassID: "JSS1A", SubjectID: "MTH", Session: "2023/2024", Term: "1"}

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	testutil.FreezeTime(t, testutil.Now)
	conf := testutil.NewConfig()
	conf.Debug = true
	conf.Compilation.NotifyOnCompletion = false
	conf.WorkDir = t.TempDir()

	var cli *commandLine
	out := new(bytes.Buffer)
	err := di.New(di.Options{
		NewConfig: func() (*core.Config, error) { return conf, nil },
		LogPrefix: "ADMIN : ",
	}).Invoke(func(resSvc *result.Service, feeSvc *fee.Service, scheduler *compilation.Scheduler) {
		t.Cleanup(scheduler.Stop)
		cli = &commandLine{
			out:       out,
			actor:     operator,
			results:   resSvc,
			fees:      feeSvc,
			scheduler: scheduler,
		}
	})
	require.NoError(t, err)
	return cli, out
}

// submit records and submits the scores of testKey. Percentages must be at least 40.
func submit(t *testing.T, cli *commandLine, percentages map[string]float64) {
	ctx := context.Background()
	teacher := testutil.Supervisor("t1", user.Assignment{ClassID: testKey.ClassID, SubjectID: testKey.SubjectID})
	for student, pct := range percentages {
		_, err := cli.results.RecordScore(ctx, teacher, result.NewScore{
			StudentID: student, SubjectID: testKey.SubjectID, ClassID: testKey.ClassID, Session: testKey.Session, Term: testKey.Term,
			Test1Score: 20, Test2Score: 20, ExamScore: pct - 40,
		})
		require.NoError(t, err)
	}
	_, err := cli.results.SubmitGroup(ctx, teacher, testKey)
	require.NoError(t, err)
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		if errors.Cause(err) != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err == nil || err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
		}
	case err != nil:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "retry: no id", args: []string{"retry"}, wantErr: errHelp},
		{name: "publish: no args", args: []string{"publish"}, wantErr: errHelp},
		{name: "publish: no term", args: []string{"publish", "-class", "JSS1A", "-session", "2023/2024"}, wantErr: errHelp},
		{name: "progress: no student", args: []string{"progress", "-session", "2023/2024", "-term", "1"}, wantErr: errHelp},
		{name: "jobs: unknown status", args: []string{"jobs", "-status", "pending,lol"}, wantErrStr: `unknown job status "lol"`},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
}

func Test_commandLine_jobs(t *testing.T) {
	cli, out := setup(t)
	submit(t, cli, map[string]float64{"s1": 85, "s2": 60, "s3": 72})

	type extra struct {
		wantOut []string
	}
	tests := []cliTest{
		{name: "scan", args: []string{"scan"}, extra: extra{wantOut: []string{"JSS1A/MTH 2023/2024 1", "pending", "0% (0/3)"}}},
		{name: "scan again", args: []string{"scan"}, extra: extra{wantOut: []string{"nothing to compile"}}},
		{name: "list pending", args: []string{"jobs", "-status", "pending"}, extra: extra{wantOut: []string{"pending"}}},
		{name: "list all", args: []string{"jobs"}, extra: extra{wantOut: []string{"JSS1A/MTH"}}},
		{name: "retry unknown job", args: []string{"retry", "-id", "lol"}, wantErr: compilation.ErrJobNotFound},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(args)
			tt.check(t, err)
			if extra, ok := tt.extra.(extra); ok {
				for _, want := range extra.wantOut {
					assert.Contains(t, out.String(), want)
				}
			}
		})
	}

	jobs, err := cli.scheduler.Jobs(context.Background(), operator, compilation.JobFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	t.Run("retry pending job", func(t *testing.T) {
		err := cli.run([]string{"admin", "retry", "-id", jobs[0].ID})
		assert.True(t, core.IsStateConflict(err), "got %v", err)
	})
}

func Test_commandLine_publish(t *testing.T) {
	ctx := context.Background()
	cli, out := setup(t)
	submit(t, cli, map[string]float64{"s1": 85, "s2": 60, "s3": 72})

	created, err := cli.scheduler.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, created, 1)
	_, err = cli.scheduler.Run(ctx, created[0].ID)
	require.NoError(t, err)

	require.NoError(t, cli.run([]string{"admin", "publish", "-class", "JSS1A", "-session", "2023/2024", "-term", "1"}))
	assert.Contains(t, out.String(), "3 results published for JSS1A 2023/2024 term 1")

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "publish", "-class", "JSS1A", "-session", "2023/2024", "-term", "1"}))
	assert.Contains(t, out.String(), "0 results published")
}

func Test_commandLine_progress(t *testing.T) {
	ctx := context.Background()
	cli, out := setup(t)
	submit(t, cli, map[string]float64{"s1": 85})
	admin := testutil.Admin()

	_, err := cli.fees.SetStructure(ctx, admin, fee.NewStructure{
		ClassLevel: "JSS1A", Session: "2023/2024", Term: "1",
		Items: []fee.NewItem{{Name: "Tuition", Amount: decimalOf(100000)}},
	})
	require.NoError(t, err)
	_, err = cli.fees.RecordPayment(ctx, admin, fee.NewPayment{StudentID: "s1", Session: "2023/2024", Term: "1", Amount: decimalOf(40000)})
	require.NoError(t, err)

	require.NoError(t, cli.run([]string{"admin", "progress", "-student", "s1", "-session", "2023/2024", "-term", "1"}))

	assert.Equal(t, "s1 (JSS1A) 2023/2024 term 1: paid 40000.00 of 100000.00 (40%), outstanding 60000.00, results withheld\n", out.String())
}

func decimalOf(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
