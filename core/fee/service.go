package fee

import (
	"context"
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-results/core"
	"github.com/trezcool/masomo-results/core/user"
)

var (
	// errors
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrStructureNotFound = errors.New("fee structure not found")
)

type (
	Repository interface {
		QueryPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
		MutatePayments(ctx context.Context, fn func(payments []Payment) ([]Payment, error)) error
		QueryStructures(ctx context.Context, session, term string) ([]Structure, error)
		GetStructure(ctx context.Context, classLevel, session, term string) (Structure, error)
		MutateStructures(ctx context.Context, fn func(structures []Structure) ([]Structure, error)) error
	}

	Service struct {
		repo       Repository
		gate       *Gate
		validate   *validator.Validate
		translator ut.Translator
		logger     core.Logger
	}
)

func NewService(repo Repository, gate *Gate, validate *validator.Validate, translator ut.Translator, logger core.Logger) *Service {
	return &Service{
		repo:       repo,
		gate:       gate,
		validate:   validate,
		translator: translator,
		logger:     logger,
	}
}

// SetStructure creates or replaces the fee structure of a class level for a session/term.
func (svc *Service) SetStructure(ctx context.Context, actor user.User, ns NewStructure) (Structure, error) {
	if err := user.CanPerform(actor, user.ActionManageFees, user.Target{ClassID: ns.ClassLevel}); err != nil {
		return Structure{}, err
	}
	ns.ClassLevel = core.CleanString(ns.ClassLevel)
	ns.Session = core.CleanString(ns.Session)
	ns.Term = core.CleanString(ns.Term)
	if err := svc.validate.Struct(ns); err != nil {
		return Structure{}, core.NewStructValidationError(err, svc.translator)
	}

	items := make([]Item, 0, len(ns.Items))
	var flds []core.FieldError
	for i, it := range ns.Items {
		if it.Amount.IsNegative() {
			flds = append(flds, core.FieldError{Field: fmt.Sprintf("items[%d].amount", i), Error: "cannot be negative"})
		}
		items = append(items, Item{Name: core.CleanString(it.Name), Amount: it.Amount})
	}
	if len(flds) > 0 {
		return Structure{}, core.NewValidationError(errors.New("invalid fee items"), flds...)
	}

	var saved Structure
	err := svc.repo.MutateStructures(ctx, func(structures []Structure) ([]Structure, error) {
		now := core.Now()
		for i, st := range structures {
			if st.ClassLevel == ns.ClassLevel && st.Session == ns.Session && st.Term == ns.Term {
				structures[i].Items = items
				structures[i].UpdatedAt = now
				saved = structures[i]
				return structures, nil
			}
		}
		saved = Structure{
			ID:         uuid.New().String(),
			ClassLevel: ns.ClassLevel,
			Session:    ns.Session,
			Term:       ns.Term,
			Items:      items,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return append(structures, saved), nil
	})
	if err != nil {
		return Structure{}, err
	}

	svc.logger.Info(fmt.Sprintf("fee structure %s %s %s set to %s", saved.ClassLevel, saved.Session, saved.Term, saved.Total()), actor)
	return saved, nil
}

func (svc *Service) Structures(ctx context.Context, actor user.User, session, term string) ([]Structure, error) {
	if err := user.CanPerform(actor, user.ActionManageFees, user.Target{}); err != nil {
		return nil, err
	}
	return svc.repo.QueryStructures(ctx, session, term)
}

// RecordPayment records a payment. Payments recorded by admins are approved right away,
// the ones declared by guardians wait for review.
func (svc *Service) RecordPayment(ctx context.Context, actor user.User, np NewPayment) (Payment, error) {
	np.StudentID = core.CleanString(np.StudentID)
	np.Session = core.CleanString(np.Session)
	np.Term = core.CleanString(np.Term)
	np.Reference = core.CleanString(np.Reference)
	if err := svc.validate.Struct(np); err != nil {
		return Payment{}, core.NewStructValidationError(err, svc.translator)
	}
	if !np.Amount.IsPositive() {
		return Payment{}, core.NewValidationError(
			errors.New("invalid payment"),
			core.FieldError{Field: "amount", Error: "must be greater than 0"},
		)
	}
	if err := user.CanPerform(actor, user.ActionRecordPayment, user.Target{StudentID: np.StudentID}); err != nil {
		return Payment{}, err
	}

	now := core.Now()
	pm := Payment{
		ID:         uuid.New().String(),
		StudentID:  np.StudentID,
		Session:    np.Session,
		Term:       np.Term,
		Amount:     np.Amount,
		Reference:  np.Reference,
		Status:     PaymentPending,
		RecordedBy: actor.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if actor.IsAdmin() {
		pm.Status = PaymentApproved
		pm.ReviewedBy = null.StringFrom(actor.ID)
		pm.ReviewedAt = null.TimeFrom(now)
	}

	err := svc.repo.MutatePayments(ctx, func(payments []Payment) ([]Payment, error) {
		return append(payments, pm), nil
	})
	if err != nil {
		return Payment{}, err
	}
	return pm, nil
}

func (svc *Service) ApprovePayment(ctx context.Context, actor user.User, id string) (Payment, error) {
	return svc.review(ctx, actor, id, PaymentApproved)
}

func (svc *Service) RejectPayment(ctx context.Context, actor user.User, id string) (Payment, error) {
	return svc.review(ctx, actor, id, PaymentRejected)
}

func (svc *Service) review(ctx context.Context, actor user.User, id string, to PaymentStatus) (Payment, error) {
	if err := user.CanPerform(actor, user.ActionReviewPayment, user.Target{}); err != nil {
		return Payment{}, err
	}

	var reviewed Payment
	err := svc.repo.MutatePayments(ctx, func(payments []Payment) ([]Payment, error) {
		for i, pm := range payments {
			if pm.ID != id {
				continue
			}
			if pm.Status != PaymentPending {
				return nil, core.NewStateConflictError(pm.ID, string(pm.Status), string(to))
			}
			now := core.Now()
			payments[i].Status = to
			payments[i].ReviewedBy = null.StringFrom(actor.ID)
			payments[i].ReviewedAt = null.TimeFrom(now)
			payments[i].UpdatedAt = now
			reviewed = payments[i]
			return payments, nil
		}
		return nil, errors.Wrap(ErrPaymentNotFound, id)
	})
	if err != nil {
		return Payment{}, err
	}

	svc.logger.Info(fmt.Sprintf("payment %s %s", reviewed.ID, reviewed.Status), actor)
	return reviewed, nil
}

// Payments lists payments. Guardians must filter on one of their wards.
func (svc *Service) Payments(ctx context.Context, actor user.User, filter PaymentFilter) ([]Payment, error) {
	if !actor.IsAdmin() {
		if err := user.CanPerform(actor, user.ActionViewFees, user.Target{StudentID: filter.StudentID}); err != nil {
			return nil, err
		}
	}
	return svc.repo.QueryPayments(ctx, filter)
}

// Progress returns the fee progress of a student, as used by the results gate.
func (svc *Service) Progress(ctx context.Context, actor user.User, studentID, session, term string) (Progress, error) {
	if err := user.CanPerform(actor, user.ActionViewFees, user.Target{StudentID: studentID}); err != nil {
		return Progress{}, err
	}
	return svc.gate.Progress(ctx, studentID, session, term)
}
