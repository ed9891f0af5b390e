package user

import (
	"github.com/trezcool/masomo-results/core"
)

// Action is an operation guarded by CanPerform.
type Action string

const (
	ActionRecordScore   Action = "result:record"
	ActionSubmitGroup   Action = "result:submit"
	ActionApprove       Action = "result:approve"
	ActionAutoApprove   Action = "result:auto_approve"
	ActionReject        Action = "result:reject"
	ActionPublish       Action = "result:publish"
	ActionViewResults   Action = "result:view"
	ActionRetryJob      Action = "job:retry"
	ActionViewJobs      Action = "job:view"
	ActionManageFees    Action = "fee:manage"
	ActionRecordPayment Action = "fee:record_payment"
	ActionReviewPayment Action = "fee:review_payment"
	ActionViewFees      Action = "fee:view"
)

// Target is what an action applies to. Unused fields are left empty.
type Target struct {
	ClassID   string
	SubjectID string
	StudentID string
}

// CanPerform is the single authorization predicate every guarded operation consults.
// It returns a *core.AuthorizationError when the actor may not perform action on target.
func CanPerform(actor User, action Action, target Target) error {
	deny := func(reason string) error {
		return core.NewAuthorizationError(actor.ID, string(action), reason)
	}

	switch action {
	case ActionRecordScore, ActionSubmitGroup:
		if !actor.IsSupervisor() {
			return deny("supervisors only")
		}
		if !actor.IsAssignedTo(target.ClassID, target.SubjectID) {
			return deny("not assigned to " + target.ClassID + "/" + target.SubjectID)
		}
		return nil

	case ActionAutoApprove:
		if !actor.IsSystem() {
			return deny("compiler only")
		}
		return nil

	case ActionApprove, ActionReject, ActionPublish, ActionRetryJob, ActionViewJobs,
		ActionManageFees, ActionReviewPayment:
		if !actor.IsAdmin() {
			return deny("admins only")
		}
		return nil

	case ActionViewResults:
		switch {
		case actor.IsAdmin():
			return nil
		case actor.IsSupervisor() && target.ClassID != "" && actor.IsAssignedTo(target.ClassID, target.SubjectID):
			return nil
		case actor.IsParent() && target.StudentID != "" && actor.IsGuardianOf(target.StudentID):
			return nil
		}
		return deny("cannot view these results")

	case ActionRecordPayment, ActionViewFees:
		if actor.IsAdmin() || (actor.IsParent() && actor.IsGuardianOf(target.StudentID)) {
			return nil
		}
		return deny("admins or the student's guardians only")
	}
	return deny("unknown action")
}
