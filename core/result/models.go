package result

import (
	"fmt"
	"time"

	"github.com/volatiletech/null/v8"
)

// Status is a Result's position in its lifecycle.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusPublished Status = "published"
)

// Rankable reports whether a Result in this status takes part in its group's ranking.
func (s Status) Rankable() bool {
	return s == StatusSubmitted || s == StatusApproved || s == StatusPublished
}

// GroupKey identifies the unit of ranking and compilation.
type GroupKey struct {
	ClassID   string `json:"class_id"`
	SubjectID string `json:"subject_id"`
	Session   string `json:"session"`
	Term      string `json:"term"`
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%s/%s %s %s", k.ClassID, k.SubjectID, k.Session, k.Term)
}

// Result is one student's recorded performance for a subject in a session/term.
type Result struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	SubjectID string `json:"subject_id"`
	ClassID   string `json:"class_id"`
	Session   string `json:"session"`
	Term      string `json:"term"`

	Test1Score float64  `json:"test1_score"`
	Test2Score float64  `json:"test2_score"`
	ExamScore  float64  `json:"exam_score"`
	TotalScore float64  `json:"total_score"`
	Percentage int      `json:"percentage"`
	Grade      string   `json:"grade"`
	Position   null.Int `json:"position"`

	Status          Status      `json:"status"`
	SupervisorID    string      `json:"supervisor_id"`
	SubmittedAt     null.Time   `json:"submitted_at"`
	ApprovedAt      null.Time   `json:"approved_at"`
	ApprovedBy      null.String `json:"approved_by"`
	RejectedAt      null.Time   `json:"rejected_at"`
	RejectedBy      null.String `json:"rejected_by"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	CompiledAt      null.Time   `json:"compiled_at"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (r *Result) Group() GroupKey {
	return GroupKey{ClassID: r.ClassID, SubjectID: r.SubjectID, Session: r.Session, Term: r.Term}
}

// SameKey reports whether o is the record for the same student in the same group.
func (r *Result) SameKey(o Result) bool {
	return r.StudentID == o.StudentID && r.Group() == o.Group()
}

// ApplyGrade recomputes the derived score fields with the given policy.
func (r *Result) ApplyGrade(p Policy) {
	b := Grade(p, r.Test1Score, r.Test2Score, r.ExamScore)
	r.TotalScore = b.Total
	r.Percentage = b.Percentage
	r.Grade = b.Grade
}

// GradeIsCurrent reports whether the derived fields match the policy applied to the current scores.
func (r *Result) GradeIsCurrent(p Policy) bool {
	b := Grade(p, r.Test1Score, r.Test2Score, r.ExamScore)
	return r.TotalScore == b.Total && r.Percentage == b.Percentage && r.Grade == b.Grade
}

// NeedsCompilation reports whether a submitted Result has not been compiled since its last submission.
func (r *Result) NeedsCompilation() bool {
	if r.Status != StatusSubmitted {
		return false
	}
	return !r.CompiledAt.Valid || (r.SubmittedAt.Valid && r.SubmittedAt.Time.After(r.CompiledAt.Time))
}

// NewScore contains the information needed to record (or re-edit) a score.
type NewScore struct {
	StudentID  string  `json:"student_id" validate:"required"`
	SubjectID  string  `json:"subject_id" validate:"required"`
	ClassID    string  `json:"class_id" validate:"required"`
	Session    string  `json:"session" validate:"required,academic_session"`
	Term       string  `json:"term" validate:"required"`
	Test1Score float64 `json:"test1_score" validate:"gte=0"`
	Test2Score float64 `json:"test2_score" validate:"gte=0"`
	ExamScore  float64 `json:"exam_score" validate:"gte=0"`
}

func (ns NewScore) Group() GroupKey {
	return GroupKey{ClassID: ns.ClassID, SubjectID: ns.SubjectID, Session: ns.Session, Term: ns.Term}
}

// QueryFilter applies AND on set fields.
type QueryFilter struct {
	IDs       []string
	StudentID string
	ClassID   string
	SubjectID string
	Session   string
	Term      string
	Statuses  []Status
}

func (qf QueryFilter) Match(r Result) bool {
	if len(qf.IDs) > 0 && !containsString(qf.IDs, r.ID) {
		return false
	}
	if qf.StudentID != "" && r.StudentID != qf.StudentID {
		return false
	}
	if qf.ClassID != "" && r.ClassID != qf.ClassID {
		return false
	}
	if qf.SubjectID != "" && r.SubjectID != qf.SubjectID {
		return false
	}
	if qf.Session != "" && r.Session != qf.Session {
		return false
	}
	if qf.Term != "" && r.Term != qf.Term {
		return false
	}
	if len(qf.Statuses) > 0 {
		for _, s := range qf.Statuses {
			if r.Status == s {
				return true
			}
		}
		return false
	}
	return true
}

// GroupFilter matches every member of key.
func GroupFilter(key GroupKey, statuses ...Status) QueryFilter {
	return QueryFilter{
		ClassID:   key.ClassID,
		SubjectID: key.SubjectID,
		Session:   key.Session,
		Term:      key.Term,
		Statuses:  statuses,
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
