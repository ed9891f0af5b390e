package reports

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-results/core/result"
	inmemdb "github.com/trezcool/masomo-results/storage/database/inmem"
	"github.com/trezcool/masomo-results/storage/store"
	testutil "github.com/trezcool/masomo-results/tests"
)

func newTestRepo(t *testing.T) *store.ResultRepository {
	t.Helper()
	adapter, err := inmemdb.Open()
	require.NoError(t, err)
	return store.NewResultRepository(store.NewDB(adapter))
}

func TestBroadsheetGenerator(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	key := result.GroupKey{ClassID: "JSS1A", SubjectID: "MTH", Session: "2023/2024", Term: "1"}
	mk := func(student string, pct int, pos null.Int) result.Result {
		return result.Result{
			ID: student, StudentID: student, Percentage: pct, Position: pos, Status: result.StatusApproved,
			ClassID: key.ClassID, SubjectID: key.SubjectID, Session: key.Session, Term: key.Term,
		}
	}
	err := repo.MutateResults(ctx, func(ledger []result.Result) ([]result.Result, error) {
		return append(ledger, mk("s2", 60, null.IntFrom(2)), mk("s3", 0, null.Int{}), mk("s1", 85, null.IntFrom(1))), nil
	})
	require.NoError(t, err)

	conf := testutil.NewConfig()
	conf.WorkDir = t.TempDir()
	gen := NewBroadsheetGenerator(repo, conf, new(testutil.Logger))

	require.NoError(t, gen.GenerateGroupReports(ctx, key))

	f, err := os.Open(filepath.Join(conf.WorkDir, "reports", "2023-2024", "1", "JSS1A_MTH.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, []string{"1", "s1"}, rows[1][:2])
	assert.Equal(t, []string{"2", "s2"}, rows[2][:2])
	assert.Equal(t, []string{"", "s3"}, rows[3][:2], "unranked members come last")
}

type brokenFile struct {
	writeErr, closeErr error
	closed             bool
}

func (f *brokenFile) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return len(p), nil
}

func (f *brokenFile) Close() error {
	f.closed = true
	return f.closeErr
}

func TestBroadsheetGenerator_fileErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    *brokenFile
		wantErr string
	}{
		{name: "write", file: &brokenFile{writeErr: errors.New("no space left")}, wantErr: "writing"},
		{name: "close", file: &brokenFile{closeErr: errors.New("no space left")}, wantErr: "closing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := testutil.NewConfig()
			conf.WorkDir = t.TempDir()
			gen := NewBroadsheetGenerator(newTestRepo(t), conf, new(testutil.Logger))
			gen.create = func(string) (io.WriteCloser, error) { return tt.file, nil }

			err := gen.GenerateGroupReports(context.Background(), result.GroupKey{ClassID: "JSS1A", SubjectID: "MTH", Session: "2023/2024", Term: "1"})

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "no space left")
			assert.True(t, tt.file.closed)
		})
	}
}
