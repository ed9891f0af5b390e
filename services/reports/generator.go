package reports

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-results/core"
	"github.com/trezcool/masomo-results/core/compilation"
	"github.com/trezcool/masomo-results/core/result"
)

// BroadsheetGenerator writes the ranked results of a compiled group to
// `<dir>/<session>/<term>/<class>_<subject>.csv`.
type BroadsheetGenerator struct {
	dir     string
	results result.Repository
	logger  core.Logger
	create  func(name string) (io.WriteCloser, error) // mockable
}

var _ compilation.ReportGenerator = (*BroadsheetGenerator)(nil)

func NewBroadsheetGenerator(results result.Repository, conf *core.Config, logger core.Logger) *BroadsheetGenerator {
	return &BroadsheetGenerator{
		dir:     filepath.Join(conf.WorkDir, "reports"),
		results: results,
		logger:  logger,
		create: func(name string) (io.WriteCloser, error) {
			return os.Create(name)
		},
	}
}

var header = []string{"position", "student_id", "test1", "test2", "exam", "total", "percentage", "grade", "status"}

func (g *BroadsheetGenerator) GenerateGroupReports(ctx context.Context, key result.GroupKey) error {
	members, err := g.results.QueryResults(ctx, result.GroupFilter(key))
	if err != nil {
		return errors.Wrap(err, "reading group")
	}
	sort.SliceStable(members, func(i, j int) bool {
		pi, pj := members[i].Position, members[j].Position
		if pi.Valid != pj.Valid {
			return pi.Valid
		}
		if pi.Int != pj.Int {
			return pi.Int < pj.Int
		}
		return members[i].StudentID < members[j].StudentID
	})

	dir := filepath.Join(g.dir, safeName(key.Session), safeName(key.Term))
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	path := filepath.Join(dir, safeName(key.ClassID)+"_"+safeName(key.SubjectID)+".csv")
	f, err := g.create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}

	w := csv.NewWriter(f)
	_ = w.Write(header)
	for _, r := range members {
		pos := ""
		if r.Position.Valid {
			pos = strconv.Itoa(r.Position.Int)
		}
		_ = w.Write([]string{
			pos,
			r.StudentID,
			formatScore(r.Test1Score),
			formatScore(r.Test2Score),
			formatScore(r.ExamScore),
			formatScore(r.TotalScore),
			strconv.Itoa(r.Percentage),
			r.Grade,
			string(r.Status),
		})
	}
	w.Flush()
	if err = w.Error(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", path)
	}

	g.logger.Info(fmt.Sprintf("broadsheet for %s written to %s", key, path))
	return nil
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// safeName keeps a path element inside its directory ("2023/2024" -> "2023-2024").
func safeName(s string) string {
	return strings.NewReplacer("/", "-", "\\", "-", "..", "_").Replace(s)
}
