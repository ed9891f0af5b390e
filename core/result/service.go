package result

import (
	"context"
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-results/core"
	"github.com/trezcool/masomo-results/core/user"
)

var (
	// errors
	ErrNotFound        = errors.New("result not found")
	ErrResultsWithheld = errors.New("results are withheld until the required fees are paid")
)

type (
	Repository interface {
		QueryResults(ctx context.Context, filter QueryFilter) ([]Result, error)
		GetResult(ctx context.Context, id string) (Result, error)
		// MutateResults hands the whole ledger to fn under the store's write lock and
		// saves what fn returns. Nothing is saved when fn fails.
		MutateResults(ctx context.Context, fn func(ledger []Result) ([]Result, error)) error
	}

	// AccessGate decides whether a student's results may be shown to guardians.
	AccessGate interface {
		CanViewResults(ctx context.Context, studentID, session, term string) (bool, error)
	}

	// SubmissionListener is told when a group gains submitted members.
	SubmissionListener interface {
		GroupSubmitted(key GroupKey)
	}

	Service struct {
		repo       Repository
		gate       AccessGate
		listener   SubmissionListener
		validate   *validator.Validate
		translator ut.Translator
		policy     Policy
		logger     core.Logger
	}
)

func NewService(
	repo Repository,
	gate AccessGate,
	listener SubmissionListener,
	validate *validator.Validate,
	translator ut.Translator,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		repo:       repo,
		gate:       gate,
		listener:   listener,
		validate:   validate,
		translator: translator,
		policy:     ParsePolicy(conf.GradingPolicy),
		logger:     logger,
	}
}

func (svc *Service) Policy() Policy { return svc.policy }

func (svc *Service) validateScore(ns *NewScore) error {
	ns.StudentID = core.CleanString(ns.StudentID)
	ns.SubjectID = core.CleanString(ns.SubjectID)
	ns.ClassID = core.CleanString(ns.ClassID)
	ns.Session = core.CleanString(ns.Session)
	ns.Term = core.CleanString(ns.Term)

	if err := svc.validate.Struct(ns); err != nil {
		return core.NewStructValidationError(err, svc.translator)
	}

	max1, max2, maxExam := svc.policy.Max()
	var flds []core.FieldError
	check := func(field string, v, max float64) {
		if v > max {
			flds = append(flds, core.FieldError{Field: field, Error: fmt.Sprintf("must be %g or less", max)})
		}
	}
	check("test1_score", ns.Test1Score, max1)
	check("test2_score", ns.Test2Score, max2)
	check("exam_score", ns.ExamScore, maxExam)
	if len(flds) > 0 {
		return core.NewValidationError(errors.New("score out of range"), flds...)
	}
	return nil
}

// RecordScore creates the draft Result for ns, or re-edits the existing draft/rejected one.
func (svc *Service) RecordScore(ctx context.Context, actor user.User, ns NewScore) (Result, error) {
	if err := svc.validateScore(&ns); err != nil {
		return Result{}, err
	}
	key := ns.Group()
	if err := user.CanPerform(actor, user.ActionRecordScore, user.Target{ClassID: key.ClassID, SubjectID: key.SubjectID}); err != nil {
		return Result{}, err
	}

	var saved Result
	err := svc.repo.MutateResults(ctx, func(ledger []Result) ([]Result, error) {
		now := core.Now()
		idx := -1
		for i := range ledger {
			if ledger[i].StudentID == ns.StudentID && ledger[i].Group() == key {
				idx = i
				break
			}
		}

		if idx < 0 {
			r := Result{
				ID:           uuid.New().String(),
				StudentID:    ns.StudentID,
				SubjectID:    ns.SubjectID,
				ClassID:      ns.ClassID,
				Session:      ns.Session,
				Term:         ns.Term,
				Status:       StatusDraft,
				SupervisorID: actor.ID,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			setScores(&r, ns, svc.policy)
			saved = r
			return append(ledger, r), nil
		}

		r := ledger[idx]
		switch r.Status {
		case StatusDraft:
			if r.SupervisorID != actor.ID {
				return nil, core.NewAuthorizationError(actor.ID, string(user.ActionRecordScore), "draft authored by "+r.SupervisorID)
			}
		case StatusRejected:
			if err := Transition(&r, TransitionRequest{To: StatusDraft, Actor: actor, Action: user.ActionRecordScore, At: now}); err != nil {
				return nil, err
			}
			r.SupervisorID = actor.ID
		default:
			return nil, core.NewStateConflictError(r.ID, string(r.Status), string(StatusDraft))
		}
		setScores(&r, ns, svc.policy)
		r.UpdatedAt = now
		ledger[idx] = r
		if isRanked(ledger, key) {
			RankGroup(ledger, key)
		}
		saved = ledger[idx]
		return ledger, nil
	})
	if err != nil {
		return Result{}, err
	}
	return saved, nil
}

func setScores(r *Result, ns NewScore, p Policy) {
	r.Test1Score = ns.Test1Score
	r.Test2Score = ns.Test2Score
	r.ExamScore = ns.ExamScore
	r.ApplyGrade(p)
}

// SubmitGroup moves the caller's drafts in key to submitted and notifies the listener.
// Every member of the group must be draft or submitted.
func (svc *Service) SubmitGroup(ctx context.Context, actor user.User, key GroupKey) ([]Result, error) {
	if err := user.CanPerform(actor, user.ActionSubmitGroup, user.Target{ClassID: key.ClassID, SubjectID: key.SubjectID}); err != nil {
		return nil, err
	}

	var submitted []Result
	err := svc.repo.MutateResults(ctx, func(ledger []Result) ([]Result, error) {
		submitted = nil
		drafts := make([]int, 0)
		for i, r := range ledger {
			if r.Group() != key {
				continue
			}
			switch r.Status {
			case StatusDraft:
				if r.SupervisorID != actor.ID {
					return nil, core.NewAuthorizationError(actor.ID, string(user.ActionSubmitGroup), "draft "+r.ID+" authored by "+r.SupervisorID)
				}
				drafts = append(drafts, i)
			case StatusRejected:
				// rejected results must be re-edited first
				return nil, core.NewStateConflictError(r.ID, string(r.Status), string(StatusSubmitted))
			case StatusApproved, StatusPublished:
				// a group is submitted as a whole: only draft and submitted members may coexist
				return nil, core.NewStateConflictError(r.ID, string(r.Status), string(StatusSubmitted))
			}
		}
		if len(drafts) == 0 {
			return nil, core.NewStateConflictError(key.String(), "no drafts", string(StatusSubmitted))
		}

		now := core.Now()
		for _, i := range drafts {
			if err := Transition(&ledger[i], TransitionRequest{To: StatusSubmitted, Actor: actor, Action: user.ActionSubmitGroup, At: now}); err != nil {
				return nil, err
			}
		}
		if isRanked(ledger, key) {
			RankGroup(ledger, key)
		}
		for _, i := range drafts {
			submitted = append(submitted, ledger[i])
		}
		return ledger, nil
	})
	if err != nil {
		return nil, err
	}

	svc.logger.Info(fmt.Sprintf("%d results submitted", len(submitted)), actor, key)
	if svc.listener != nil {
		svc.listener.GroupSubmitted(key)
	}
	return submitted, nil
}

// Approve moves the given submitted Results to approved and re-ranks their groups.
// Either all of them are approved or none.
func (svc *Service) Approve(ctx context.Context, actor user.User, ids ...string) ([]Result, error) {
	return svc.transitionMany(ctx, ids, TransitionRequest{To: StatusApproved, Actor: actor, Action: user.ActionApprove}, true)
}

// ApproveGroup approves every submitted member of key.
func (svc *Service) ApproveGroup(ctx context.Context, actor user.User, key GroupKey) ([]Result, error) {
	if err := user.CanPerform(actor, user.ActionApprove, user.Target{ClassID: key.ClassID, SubjectID: key.SubjectID}); err != nil {
		return nil, err
	}
	members, err := svc.repo.QueryResults(ctx, GroupFilter(key, StatusSubmitted))
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, core.NewStateConflictError(key.String(), "no submitted results", string(StatusApproved))
	}
	ids := make([]string, 0, len(members))
	for _, r := range members {
		ids = append(ids, r.ID)
	}
	return svc.Approve(ctx, actor, ids...)
}

// Reject moves the given submitted Results to rejected.
func (svc *Service) Reject(ctx context.Context, actor user.User, reason string, ids ...string) ([]Result, error) {
	return svc.transitionMany(ctx, ids, TransitionRequest{To: StatusRejected, Actor: actor, Action: user.ActionReject, Reason: core.CleanString(reason)}, false)
}

func (svc *Service) transitionMany(ctx context.Context, ids []string, req TransitionRequest, forceRank bool) ([]Result, error) {
	if len(ids) == 0 {
		return nil, core.NewValidationError(errors.New("no results given"), core.FieldError{Field: "ids", Error: "this field is required"})
	}

	var moved []Result
	err := svc.repo.MutateResults(ctx, func(ledger []Result) ([]Result, error) {
		moved = nil
		req.At = core.Now()
		byID := make(map[string]int, len(ledger))
		for i, r := range ledger {
			byID[r.ID] = i
		}

		groups := make(map[GroupKey]bool)
		idxs := make([]int, 0, len(ids))
		for _, id := range ids {
			i, ok := byID[id]
			if !ok {
				return nil, errors.Wrap(ErrNotFound, id)
			}
			if err := Transition(&ledger[i], req); err != nil {
				return nil, err
			}
			groups[ledger[i].Group()] = true
			idxs = append(idxs, i)
		}
		for key := range groups {
			if forceRank || isRanked(ledger, key) {
				RankGroup(ledger, key)
			}
		}
		for _, i := range idxs {
			moved = append(moved, ledger[i])
		}
		return ledger, nil
	})
	if err != nil {
		return nil, err
	}

	svc.logger.Info(fmt.Sprintf("%d results moved to %s", len(moved), req.To), req.Actor)
	return moved, nil
}

// Publish moves every approved Result of the class in session/term to published and returns
// how many were published. Results in other states are untouched.
func (svc *Service) Publish(ctx context.Context, actor user.User, classID, session, term string) (int, error) {
	if err := user.CanPerform(actor, user.ActionPublish, user.Target{ClassID: classID}); err != nil {
		return 0, err
	}

	var count int
	err := svc.repo.MutateResults(ctx, func(ledger []Result) ([]Result, error) {
		count = 0
		now := core.Now()
		for i, r := range ledger {
			if r.ClassID != classID || r.Session != session || r.Term != term || r.Status != StatusApproved {
				continue
			}
			if err := Transition(&ledger[i], TransitionRequest{To: StatusPublished, Actor: actor, Action: user.ActionPublish, At: now}); err != nil {
				return nil, err
			}
			count++
		}
		return ledger, nil
	})
	if err != nil {
		return 0, err
	}

	svc.logger.Info(fmt.Sprintf("published %d results for %s %s %s", count, classID, session, term), actor)
	return count, nil
}

// Get returns one Result the actor may see.
func (svc *Service) Get(ctx context.Context, actor user.User, id string) (Result, error) {
	r, err := svc.repo.GetResult(ctx, id)
	if err != nil {
		return Result{}, err
	}
	visible, err := svc.visible(ctx, actor, []Result{r})
	if err != nil {
		return Result{}, err
	}
	if len(visible) == 0 {
		return Result{}, core.NewAuthorizationError(actor.ID, string(user.ActionViewResults), "result not visible")
	}
	return r, nil
}

// Query returns the Results matching filter that the actor may see.
func (svc *Service) Query(ctx context.Context, actor user.User, filter QueryFilter) ([]Result, error) {
	results, err := svc.repo.QueryResults(ctx, filter)
	if err != nil {
		return nil, err
	}
	return svc.visible(ctx, actor, results)
}

// StudentResults is the guardian-facing view: only published results, and only when the
// student's fees unlock them. Admins see every status.
func (svc *Service) StudentResults(ctx context.Context, actor user.User, studentID, session, term string) ([]Result, error) {
	if err := user.CanPerform(actor, user.ActionViewResults, user.Target{StudentID: studentID}); err != nil {
		return nil, err
	}
	filter := QueryFilter{StudentID: studentID, Session: session, Term: term}
	if actor.IsAdmin() {
		return svc.repo.QueryResults(ctx, filter)
	}

	ok, err := svc.gate.CanViewResults(ctx, studentID, session, term)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrResultsWithheld
	}
	filter.Statuses = []Status{StatusPublished}
	return svc.repo.QueryResults(ctx, filter)
}

func (svc *Service) visible(ctx context.Context, actor user.User, results []Result) ([]Result, error) {
	type gateKey struct{ student, session, term string }
	gates := make(map[gateKey]bool)

	out := make([]Result, 0, len(results))
	for _, r := range results {
		target := user.Target{ClassID: r.ClassID, SubjectID: r.SubjectID, StudentID: r.StudentID}
		if user.CanPerform(actor, user.ActionViewResults, target) != nil {
			continue
		}
		if actor.IsAdmin() || (actor.IsSupervisor() && actor.IsAssignedTo(r.ClassID, r.SubjectID)) {
			out = append(out, r)
			continue
		}

		// guardians: both gates must pass
		if r.Status != StatusPublished {
			continue
		}
		gk := gateKey{r.StudentID, r.Session, r.Term}
		ok, seen := gates[gk]
		if !seen {
			var err error
			if ok, err = svc.gate.CanViewResults(ctx, r.StudentID, r.Session, r.Term); err != nil {
				return nil, err
			}
			gates[gk] = ok
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}
