package compilation

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-results/core/result"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Active reports whether a job in this status still holds its group.
func (s JobStatus) Active() bool {
	return s == JobPending || s == JobProcessing
}

// Job is the unit of background work that grades and ranks a submitted group.
type Job struct {
	ID                string    `json:"id"`
	ClassID           string    `json:"class_id"`
	SubjectID         string    `json:"subject_id"`
	Session           string    `json:"session"`
	Term              string    `json:"term"`
	Status            JobStatus `json:"status"`
	TotalStudents     int       `json:"total_students"`
	ProcessedStudents int       `json:"processed_students"`
	Progress          int       `json:"progress"` // 0-100
	Errors            []string  `json:"errors"`
	Attempts          int       `json:"attempts"`
	CreatedAt         time.Time `json:"created_at"`
	QueuedAt          time.Time `json:"queued_at"` // last time the job entered pending
	StartedAt         null.Time `json:"started_at"`
	CompletedAt       null.Time `json:"completed_at"`
}

func (j *Job) Group() result.GroupKey {
	return result.GroupKey{ClassID: j.ClassID, SubjectID: j.SubjectID, Session: j.Session, Term: j.Term}
}

func (j *Job) setProgress() {
	if j.TotalStudents == 0 {
		j.Progress = 100
		return
	}
	// round half up
	j.Progress = (200*j.ProcessedStudents + j.TotalStudents) / (2 * j.TotalStudents)
}

// JobFilter applies AND on set fields.
type JobFilter struct {
	IDs      []string
	ClassID  string
	Session  string
	Term     string
	Statuses []JobStatus
}

func (f JobFilter) Match(j Job) bool {
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == j.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ClassID != "" && j.ClassID != f.ClassID {
		return false
	}
	if f.Session != "" && j.Session != f.Session {
		return false
	}
	if f.Term != "" && j.Term != f.Term {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if j.Status == s {
				return true
			}
		}
		return false
	}
	return true
}
