package user

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-results/core"
)

func TestCanPerform(t *testing.T) {
	admin := User{ID: "adm", Roles: []string{RoleAdminPrincipal}}
	sup := User{ID: "sup", Roles: SupervisorRoles, Assignments: []Assignment{{ClassID: "JSS1A", SubjectID: "MTH"}}}
	parent := User{ID: "par", Roles: ParentRoles, Wards: []string{"stu-1"}}
	nobody := User{ID: "anon"}

	mth := Target{ClassID: "JSS1A", SubjectID: "MTH"}
	eng := Target{ClassID: "JSS1A", SubjectID: "ENG"}

	tests := []struct {
		name    string
		actor   User
		action  Action
		target  Target
		allowed bool
	}{
		{name: "supervisor records own subject", actor: sup, action: ActionRecordScore, target: mth, allowed: true},
		{name: "supervisor records other subject", actor: sup, action: ActionRecordScore, target: eng},
		{name: "admin cannot record scores", actor: admin, action: ActionRecordScore, target: mth},
		{name: "supervisor submits own group", actor: sup, action: ActionSubmitGroup, target: mth, allowed: true},
		{name: "supervisor cannot approve", actor: sup, action: ActionApprove, target: mth},
		{name: "admin approves", actor: admin, action: ActionApprove, target: mth, allowed: true},
		{name: "admin rejects", actor: admin, action: ActionReject, target: mth, allowed: true},
		{name: "admin publishes", actor: admin, action: ActionPublish, target: Target{ClassID: "JSS1A"}, allowed: true},
		{name: "parent cannot publish", actor: parent, action: ActionPublish, target: Target{ClassID: "JSS1A"}},
		{name: "admin cannot auto approve", actor: admin, action: ActionAutoApprove, target: mth},
		{name: "compiler auto approves", actor: Compiler, action: ActionAutoApprove, target: mth, allowed: true},
		{name: "compiler cannot publish", actor: Compiler, action: ActionPublish, target: mth},
		{name: "admin retries jobs", actor: admin, action: ActionRetryJob, allowed: true},
		{name: "supervisor cannot retry jobs", actor: sup, action: ActionRetryJob},
		{name: "supervisor views assigned class", actor: sup, action: ActionViewResults, target: Target{ClassID: "JSS1A"}, allowed: true},
		{name: "supervisor views other class", actor: sup, action: ActionViewResults, target: Target{ClassID: "JSS2B"}},
		{name: "parent views ward", actor: parent, action: ActionViewResults, target: Target{StudentID: "stu-1"}, allowed: true},
		{name: "parent views other student", actor: parent, action: ActionViewResults, target: Target{StudentID: "stu-2"}},
		{name: "parent records ward payment", actor: parent, action: ActionRecordPayment, target: Target{StudentID: "stu-1"}, allowed: true},
		{name: "parent cannot review payment", actor: parent, action: ActionReviewPayment, target: Target{StudentID: "stu-1"}},
		{name: "no roles", actor: nobody, action: ActionViewResults, target: mth},
		{name: "unknown action", actor: admin, action: Action("lol"), target: mth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CanPerform(tt.actor, tt.action, tt.target)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, core.IsAuthorization(err), "CanPerform() error = %v, want AuthorizationError", err)
			}
		})
	}
}
