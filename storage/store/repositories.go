package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-results/core/compilation"
	"github.com/trezcool/masomo-results/core/fee"
	"github.com/trezcool/masomo-results/core/result"
	"github.com/trezcool/masomo-results/storage/database"
)

type ResultRepository struct {
	db *DB
}

var (
	_ result.Repository      = (*ResultRepository)(nil)
	_ fee.ClassResolver      = (*ResultRepository)(nil)
	_ compilation.Repository = (*JobRepository)(nil)
	_ fee.Repository         = (*FeeRepository)(nil)
)

func NewResultRepository(db *DB) *ResultRepository {
	return &ResultRepository{db: db}
}

func (repo *ResultRepository) QueryResults(ctx context.Context, filter result.QueryFilter) ([]result.Result, error) {
	ledger, err := read[result.Result](ctx, repo.db, database.Results)
	if err != nil {
		return nil, err
	}
	out := make([]result.Result, 0, len(ledger))
	for _, r := range ledger {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (repo *ResultRepository) GetResult(ctx context.Context, id string) (result.Result, error) {
	ledger, err := read[result.Result](ctx, repo.db, database.Results)
	if err != nil {
		return result.Result{}, err
	}
	for _, r := range ledger {
		if r.ID == id {
			return r, nil
		}
	}
	return result.Result{}, errors.Wrap(result.ErrNotFound, id)
}

func (repo *ResultRepository) MutateResults(ctx context.Context, fn func([]result.Result) ([]result.Result, error)) error {
	return mutate(ctx, repo.db, database.Results, fn)
}

// ClassOf returns the class the student has results in for session/term.
func (repo *ResultRepository) ClassOf(ctx context.Context, studentID, session, term string) (string, error) {
	ledger, err := read[result.Result](ctx, repo.db, database.Results)
	if err != nil {
		return "", err
	}
	for _, r := range ledger {
		if r.StudentID == studentID && r.Session == session && r.Term == term {
			return r.ClassID, nil
		}
	}
	return "", nil
}

type JobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

func (repo *JobRepository) QueryJobs(ctx context.Context, filter compilation.JobFilter) ([]compilation.Job, error) {
	jobs, err := read[compilation.Job](ctx, repo.db, database.CompilationJobs)
	if err != nil {
		return nil, err
	}
	out := make([]compilation.Job, 0, len(jobs))
	for _, j := range jobs {
		if filter.Match(j) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (repo *JobRepository) GetJob(ctx context.Context, id string) (compilation.Job, error) {
	jobs, err := read[compilation.Job](ctx, repo.db, database.CompilationJobs)
	if err != nil {
		return compilation.Job{}, err
	}
	for _, j := range jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return compilation.Job{}, errors.Wrap(compilation.ErrJobNotFound, id)
}

func (repo *JobRepository) MutateJobs(ctx context.Context, fn func([]compilation.Job) ([]compilation.Job, error)) error {
	return mutate(ctx, repo.db, database.CompilationJobs, fn)
}

type FeeRepository struct {
	db *DB
}

func NewFeeRepository(db *DB) *FeeRepository {
	return &FeeRepository{db: db}
}

func (repo *FeeRepository) QueryPayments(ctx context.Context, filter fee.PaymentFilter) ([]fee.Payment, error) {
	payments, err := read[fee.Payment](ctx, repo.db, database.Payments)
	if err != nil {
		return nil, err
	}
	out := make([]fee.Payment, 0, len(payments))
	for _, p := range payments {
		if filter.Match(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (repo *FeeRepository) MutatePayments(ctx context.Context, fn func([]fee.Payment) ([]fee.Payment, error)) error {
	return mutate(ctx, repo.db, database.Payments, fn)
}

func (repo *FeeRepository) QueryStructures(ctx context.Context, session, term string) ([]fee.Structure, error) {
	structures, err := read[fee.Structure](ctx, repo.db, database.FeeStructures)
	if err != nil {
		return nil, err
	}
	out := make([]fee.Structure, 0, len(structures))
	for _, s := range structures {
		if (session == "" || s.Session == session) && (term == "" || s.Term == term) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (repo *FeeRepository) GetStructure(ctx context.Context, classLevel, session, term string) (fee.Structure, error) {
	structures, err := read[fee.Structure](ctx, repo.db, database.FeeStructures)
	if err != nil {
		return fee.Structure{}, err
	}
	for _, s := range structures {
		if s.ClassLevel == classLevel && s.Session == session && s.Term == term {
			return s, nil
		}
	}
	return fee.Structure{}, fee.ErrStructureNotFound
}

func (repo *FeeRepository) MutateStructures(ctx context.Context, fn func([]fee.Structure) ([]fee.Structure, error)) error {
	return mutate(ctx, repo.db, database.FeeStructures, fn)
}
