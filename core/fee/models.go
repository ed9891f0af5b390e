package fee

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

// Payment is a fee payment made for a student in a session/term.
// Only approved payments count towards the fee progress.
type Payment struct {
	ID         string          `json:"id"`
	StudentID  string          `json:"student_id"`
	Session    string          `json:"session"`
	Term       string          `json:"term"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference,omitempty"`
	Status     PaymentStatus   `json:"status"`
	RecordedBy string          `json:"recorded_by"`
	ReviewedBy null.String     `json:"reviewed_by"`
	ReviewedAt null.Time       `json:"reviewed_at"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Item is one line of a fee Structure (tuition, uniform...).
type Item struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// Structure is the required fees for a class level in a session/term.
type Structure struct {
	ID         string    `json:"id"`
	ClassLevel string    `json:"class_level"`
	Session    string    `json:"session"`
	Term       string    `json:"term"`
	Items      []Item    `json:"items"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (s Structure) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.Amount)
	}
	return total
}

// Progress is a student's fee-payment progress for a session/term. It is derived, never stored.
type Progress struct {
	StudentID   string          `json:"student_id"`
	Session     string          `json:"session"`
	Term        string          `json:"term"`
	ClassLevel  string          `json:"class_level"`
	Required    decimal.Decimal `json:"required"`
	Paid        decimal.Decimal `json:"paid"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Percentage  int             `json:"percentage"` // may exceed 100 on overpayment
	Threshold   float64         `json:"threshold"`
	CanView     bool            `json:"can_view"`
}

type NewPayment struct {
	StudentID string          `json:"student_id" validate:"required"`
	Session   string          `json:"session" validate:"required,academic_session"`
	Term      string          `json:"term" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

type NewItem struct {
	Name   string          `json:"name" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type NewStructure struct {
	ClassLevel string    `json:"class_level" validate:"required"`
	Session    string    `json:"session" validate:"required,academic_session"`
	Term       string    `json:"term" validate:"required"`
	Items      []NewItem `json:"items" validate:"required,min=1,dive"`
}

// PaymentFilter applies AND on set fields.
type PaymentFilter struct {
	StudentID string
	Session   string
	Term      string
	Statuses  []PaymentStatus
}

func (f PaymentFilter) Match(p Payment) bool {
	if f.StudentID != "" && p.StudentID != f.StudentID {
		return false
	}
	if f.Session != "" && p.Session != f.Session {
		return false
	}
	if f.Term != "" && p.Term != f.Term {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, s := range f.Statuses {
			if p.Status == s {
				return true
			}
		}
		return false
	}
	return true
}
