package store

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-results/core"
	"github.com/trezcool/masomo-results/core/compilation"
	"github.com/trezcool/masomo-results/core/fee"
	"github.com/trezcool/masomo-results/core/result"
	"github.com/trezcool/masomo-results/storage/database"
	testutil "github.com/trezcool/masomo-results/tests"
)

func openTestDBs(t *testing.T) map[string]*DB {
	t.Helper()
	dbs := make(map[string]*DB)
	for _, engine := range []string{core.StorageMemory, core.StorageFile} {
		conf := testutil.NewConfig()
		conf.Storage.Engine = engine
		conf.Storage.Dir = t.TempDir()
		db, err := Open(context.Background(), conf)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		dbs[engine] = db
	}
	return dbs
}

func TestOpen_unknownEngine(t *testing.T) {
	conf := testutil.NewConfig()
	conf.Storage.Engine = "cassandra"

	_, err := Open(context.Background(), conf)

	assert.Error(t, err)
}

func TestResultRepository(t *testing.T) {
	ctx := context.Background()
	for engine, db := range openTestDBs(t) {
		t.Run(engine, func(t *testing.T) {
			repo := NewResultRepository(db)

			err := repo.MutateResults(ctx, func(ledger []result.Result) ([]result.Result, error) {
				assert.Empty(t, ledger)
				return append(ledger,
					result.Result{ID: "r1", StudentID: "s1", ClassID: "JSS1A", SubjectID: "MTH", Session: "2023/2024", Term: "1", Status: result.StatusDraft, Position: null.IntFrom(2)},
					result.Result{ID: "r2", StudentID: "s2", ClassID: "JSS1B", SubjectID: "MTH", Session: "2023/2024", Term: "1", Status: result.StatusSubmitted},
				), nil
			})
			require.NoError(t, err)

			got, err := repo.GetResult(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, 2, got.Position.Int)
			assert.False(t, got.SubmittedAt.Valid)

			_, err = repo.GetResult(ctx, "nope")
			assert.True(t, errors.Is(err, result.ErrNotFound), "GetResult() error = %v", err)

			submitted, err := repo.QueryResults(ctx, result.QueryFilter{Statuses: []result.Status{result.StatusSubmitted}})
			require.NoError(t, err)
			require.Len(t, submitted, 1)
			assert.Equal(t, "r2", submitted[0].ID)

			class, err := repo.ClassOf(ctx, "s2", "2023/2024", "1")
			require.NoError(t, err)
			assert.Equal(t, "JSS1B", class)
			class, err = repo.ClassOf(ctx, "s2", "2024/2025", "1")
			require.NoError(t, err)
			assert.Empty(t, class)

			// failed mutations save nothing
			boom := errors.New("boom")
			err = repo.MutateResults(ctx, func(ledger []result.Result) ([]result.Result, error) {
				ledger[0].Status = result.StatusPublished
				return nil, boom
			})
			assert.Equal(t, boom, err)
			got, _ = repo.GetResult(ctx, "r1")
			assert.Equal(t, result.StatusDraft, got.Status)
		})
	}
}

func TestJobRepository(t *testing.T) {
	ctx := context.Background()
	for engine, db := range openTestDBs(t) {
		t.Run(engine, func(t *testing.T) {
			repo := NewJobRepository(db)
			err := repo.MutateJobs(ctx, func(jobs []compilation.Job) ([]compilation.Job, error) {
				return append(jobs,
					compilation.Job{ID: "j1", ClassID: "C", Status: compilation.JobFailed, Errors: []string{"disk full"}},
					compilation.Job{ID: "j2", ClassID: "C", Status: compilation.JobCompleted},
				), nil
			})
			require.NoError(t, err)

			failed, err := repo.QueryJobs(ctx, compilation.JobFilter{Statuses: []compilation.JobStatus{compilation.JobFailed}})
			require.NoError(t, err)
			require.Len(t, failed, 1)
			assert.Equal(t, []string{"disk full"}, failed[0].Errors)

			_, err = repo.GetJob(ctx, "j3")
			assert.True(t, errors.Is(err, compilation.ErrJobNotFound), "GetJob() error = %v", err)
		})
	}
}

func TestFeeRepository(t *testing.T) {
	ctx := context.Background()
	for engine, db := range openTestDBs(t) {
		t.Run(engine, func(t *testing.T) {
			repo := NewFeeRepository(db)
			err := repo.MutateStructures(ctx, func(structures []fee.Structure) ([]fee.Structure, error) {
				return append(structures, fee.Structure{
					ID: "st1", ClassLevel: "JSS1A", Session: "2023/2024", Term: "1",
					Items: []fee.Item{{Name: "tuition", Amount: decimal.RequireFromString("1234.56")}},
				}), nil
			})
			require.NoError(t, err)
			err = repo.MutatePayments(ctx, func(payments []fee.Payment) ([]fee.Payment, error) {
				return append(payments, fee.Payment{ID: "p1", StudentID: "s1", Session: "2023/2024", Term: "1", Amount: decimal.RequireFromString("0.10"), Status: fee.PaymentApproved}), nil
			})
			require.NoError(t, err)

			st, err := repo.GetStructure(ctx, "JSS1A", "2023/2024", "1")
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString("1234.56").Equal(st.Total()), "amounts survive the round trip")

			_, err = repo.GetStructure(ctx, "JSS3A", "2023/2024", "1")
			assert.Equal(t, fee.ErrStructureNotFound, err)

			all, err := repo.QueryStructures(ctx, "2023/2024", "")
			require.NoError(t, err)
			assert.Len(t, all, 1)

			payments, err := repo.QueryPayments(ctx, fee.PaymentFilter{StudentID: "s1"})
			require.NoError(t, err)
			require.Len(t, payments, 1)
			assert.True(t, decimal.RequireFromString("0.1").Equal(payments[0].Amount))
		})
	}
}

func TestDB_serializesMutations(t *testing.T) {
	ctx := context.Background()
	for engine, db := range openTestDBs(t) {
		t.Run(engine, func(t *testing.T) {
			repo := NewJobRepository(db)
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := repo.MutateJobs(ctx, func(jobs []compilation.Job) ([]compilation.Job, error) {
						return append(jobs, compilation.Job{ID: decimal.NewFromInt(int64(len(jobs))).String()}), nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			jobs, err := repo.QueryJobs(ctx, compilation.JobFilter{})
			require.NoError(t, err)
			assert.Len(t, jobs, 20, "no lost update")
		})
	}
}

func TestCollections(t *testing.T) {
	assert.ElementsMatch(t, []string{"results", "compilationJobs", "payments", "feeStructures"}, database.Collections)
}
