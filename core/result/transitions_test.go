package result

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-results/core"
	"github.com/trezcool/masomo-results/core/user"
)

var (
	testNow = time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)

	testAdmin      = user.User{ID: "adm", Roles: user.AdminRoles}
	testSupervisor = user.User{
		ID:          "sup",
		Roles:       user.SupervisorRoles,
		Assignments: []user.Assignment{{ClassID: "JSS1A", SubjectID: "MTH"}},
	}
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusDraft, StatusSubmitted, StatusApproved, StatusRejected, StatusPublished}
	legal := map[[2]Status]bool{
		{StatusDraft, StatusSubmitted}:    true,
		{StatusSubmitted, StatusApproved}: true,
		{StatusSubmitted, StatusRejected}: true,
		{StatusApproved, StatusPublished}: true,
		{StatusRejected, StatusDraft}:     true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransition(t *testing.T) {
	base := Result{ID: "r1", StudentID: "s1", ClassID: "JSS1A", SubjectID: "MTH", SupervisorID: "sup"}

	tests := []struct {
		name     string
		from     Status
		req      TransitionRequest
		wantErr  func(error) bool
		wantStat Status
	}{
		{name: "submit", from: StatusDraft, req: TransitionRequest{To: StatusSubmitted, Actor: testSupervisor, Action: user.ActionSubmitGroup}, wantStat: StatusSubmitted},
		{name: "approve", from: StatusSubmitted, req: TransitionRequest{To: StatusApproved, Actor: testAdmin, Action: user.ActionApprove}, wantStat: StatusApproved},
		{name: "auto approve", from: StatusSubmitted, req: TransitionRequest{To: StatusApproved, Actor: user.Compiler, Action: user.ActionAutoApprove}, wantStat: StatusApproved},
		{name: "reject", from: StatusSubmitted, req: TransitionRequest{To: StatusRejected, Actor: testAdmin, Action: user.ActionReject, Reason: "check exam"}, wantStat: StatusRejected},
		{name: "publish", from: StatusApproved, req: TransitionRequest{To: StatusPublished, Actor: testAdmin, Action: user.ActionPublish}, wantStat: StatusPublished},
		{name: "re-edit rejected", from: StatusRejected, req: TransitionRequest{To: StatusDraft, Actor: testSupervisor, Action: user.ActionRecordScore}, wantStat: StatusDraft},
		{name: "supervisor approves", from: StatusSubmitted, req: TransitionRequest{To: StatusApproved, Actor: testSupervisor, Action: user.ActionApprove}, wantErr: core.IsAuthorization},
		{name: "approve published", from: StatusPublished, req: TransitionRequest{To: StatusApproved, Actor: testAdmin, Action: user.ActionApprove}, wantErr: core.IsStateConflict},
		{name: "publish submitted", from: StatusSubmitted, req: TransitionRequest{To: StatusPublished, Actor: testAdmin, Action: user.ActionPublish}, wantErr: core.IsStateConflict},
		{name: "approve draft", from: StatusDraft, req: TransitionRequest{To: StatusApproved, Actor: testAdmin, Action: user.ActionApprove}, wantErr: core.IsStateConflict},
		{name: "approve with wrong action", from: StatusSubmitted, req: TransitionRequest{To: StatusApproved, Actor: testAdmin, Action: user.ActionPublish}, wantErr: core.IsStateConflict},
		{name: "reject rejected", from: StatusRejected, req: TransitionRequest{To: StatusRejected, Actor: testAdmin, Action: user.ActionReject}, wantErr: core.IsStateConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			r.Status = tt.from
			r.Position.SetValid(2)
			tt.req.At = testNow

			err := Transition(&r, tt.req)
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr(err), "Transition() error = %v", err)
				assert.Equal(t, tt.from, r.Status, "status changed on error")
				assert.True(t, r.Position.Valid, "record changed on error")
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantStat, r.Status)
			assert.Equal(t, testNow, r.UpdatedAt)
		})
	}
}

func TestTransition_stamps(t *testing.T) {
	r := Result{ID: "r1", StudentID: "s1", ClassID: "JSS1A", SubjectID: "MTH", Status: StatusSubmitted}

	err := Transition(&r, TransitionRequest{To: StatusApproved, Actor: testAdmin, Action: user.ActionApprove, At: testNow})

	assert.NoError(t, err)
	assert.Equal(t, testNow, r.ApprovedAt.Time)
	assert.Equal(t, "adm", r.ApprovedBy.String)

	r.Status = StatusSubmitted
	r.Position.SetValid(1)
	err = Transition(&r, TransitionRequest{To: StatusRejected, Actor: testAdmin, Action: user.ActionReject, At: testNow, Reason: "typo"})

	assert.NoError(t, err)
	assert.Equal(t, "typo", r.RejectionReason)
	assert.False(t, r.Position.Valid, "rejected results leave the ranking")
}
