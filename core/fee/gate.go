package fee

import (
	"context"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-results/core"
)

var hundred = decimal.NewFromInt(100)

// ClassResolver finds the class level a student belongs to in a session/term.
// An empty class level with a nil error means the student is unknown.
type ClassResolver interface {
	ClassOf(ctx context.Context, studentID, session, term string) (string, error)
}

// Gate decides whether guardians may see a student's published results.
type Gate struct {
	repo      Repository
	classes   ClassResolver
	threshold decimal.Decimal
}

func NewGate(repo Repository, classes ClassResolver, conf *core.Config) (*Gate, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(classes, "classes"),
		vala.IsNotNil(conf, "conf"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "creating fee gate")
	}
	return &Gate{
		repo:      repo,
		classes:   classes,
		threshold: decimal.NewFromFloat(conf.AccessThreshold),
	}, nil
}

// Progress sums the approved payments of a student against the fee structure of their class level.
func (g *Gate) Progress(ctx context.Context, studentID, session, term string) (Progress, error) {
	p := Progress{StudentID: studentID, Session: session, Term: term, Threshold: g.threshold.InexactFloat64()}

	classLevel, err := g.classes.ClassOf(ctx, studentID, session, term)
	if err != nil {
		return p, errors.Wrap(err, "resolving class level")
	}
	p.ClassLevel = classLevel

	p.Required = decimal.Zero
	if classLevel != "" {
		st, err := g.repo.GetStructure(ctx, classLevel, session, term)
		switch {
		case err == nil:
			p.Required = st.Total()
		case errors.Cause(err) != ErrStructureNotFound:
			return p, errors.Wrap(err, "getting fee structure")
		}
	}

	payments, err := g.repo.QueryPayments(ctx, PaymentFilter{
		StudentID: studentID,
		Session:   session,
		Term:      term,
		Statuses:  []PaymentStatus{PaymentApproved},
	})
	if err != nil {
		return p, errors.Wrap(err, "querying payments")
	}
	p.Paid = decimal.Zero
	for _, pm := range payments {
		p.Paid = p.Paid.Add(pm.Amount)
	}

	p.Outstanding = decimal.Max(p.Required.Sub(p.Paid), decimal.Zero)
	if p.Required.Sign() <= 0 {
		// no fee rule: never lock results out
		p.Percentage = 100
		p.CanView = true
		return p, nil
	}
	p.Percentage = int(p.Paid.Mul(hundred).Div(p.Required).Round(0).IntPart())
	p.CanView = p.Paid.GreaterThanOrEqual(p.Required.Mul(g.threshold))
	return p, nil
}

func (g *Gate) CanViewResults(ctx context.Context, studentID, session, term string) (bool, error) {
	p, err := g.Progress(ctx, studentID, session, term)
	if err != nil {
		return false, err
	}
	return p.CanView, nil
}
