package result

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-results/core"
	"github.com/trezcool/masomo-results/core/user"
)

// transitions lists the legal moves and the action authorizing each one.
var transitions = map[Status]map[Status][]user.Action{
	StatusDraft: {
		StatusSubmitted: {user.ActionSubmitGroup},
	},
	StatusSubmitted: {
		StatusApproved: {user.ActionApprove, user.ActionAutoApprove},
		StatusRejected: {user.ActionReject},
	},
	StatusApproved: {
		StatusPublished: {user.ActionPublish},
	},
	StatusRejected: {
		StatusDraft: {user.ActionRecordScore},
	},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// TransitionRequest carries who moves a Result and why.
type TransitionRequest struct {
	To     Status
	Actor  user.User
	Action user.Action
	At     time.Time
	Reason string // rejections
}

// Transition moves r to req.To after checking the actor's permission and the source state.
// r is left untouched on error.
func Transition(r *Result, req TransitionRequest) error {
	target := user.Target{ClassID: r.ClassID, SubjectID: r.SubjectID, StudentID: r.StudentID}
	if err := user.CanPerform(req.Actor, req.Action, target); err != nil {
		return err
	}
	if !actionAllowed(r.Status, req.To, req.Action) {
		return core.NewStateConflictError(r.ID, string(r.Status), string(req.To))
	}

	at := req.At
	if at.IsZero() {
		at = core.Now()
	}
	switch req.To {
	case StatusSubmitted:
		r.SubmittedAt = null.TimeFrom(at)
	case StatusApproved:
		r.ApprovedAt = null.TimeFrom(at)
		r.ApprovedBy = null.StringFrom(req.Actor.ID)
	case StatusRejected:
		r.RejectedAt = null.TimeFrom(at)
		r.RejectedBy = null.StringFrom(req.Actor.ID)
		r.RejectionReason = req.Reason
		r.Position = null.Int{}
	case StatusDraft: // new cycle
		r.SubmittedAt = null.Time{}
		r.ApprovedAt = null.Time{}
		r.ApprovedBy = null.String{}
		r.CompiledAt = null.Time{}
		r.Position = null.Int{}
	}
	r.Status = req.To
	r.UpdatedAt = at
	return nil
}

func actionAllowed(from, to Status, action user.Action) bool {
	actions, ok := transitions[from][to]
	if !ok {
		return false
	}
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}
