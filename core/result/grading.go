package result

import (
	"github.com/shopspring/decimal"
)

// Policy is the score entry convention of a deployment.
type Policy string

const (
	// PolicyRaw: test1 and test2 out of 20, exam out of 60; the sum is the percentage.
	PolicyRaw Policy = "raw"
	// PolicyWeighted: every component out of 100, weighted 0.2/0.2/0.6.
	PolicyWeighted Policy = "weighted"
)

var (
	weightTest = decimal.RequireFromString("0.2")
	weightExam = decimal.RequireFromString("0.6")

	gradeBands = []struct {
		min   int
		grade string
	}{
		{80, "A"},
		{70, "B"},
		{60, "C"},
		{50, "D"},
		{40, "E"},
	}
)

// ParsePolicy defaults to PolicyRaw.
func ParsePolicy(s string) Policy {
	if Policy(s) == PolicyWeighted {
		return PolicyWeighted
	}
	return PolicyRaw
}

// Max returns the highest accepted value of each component.
func (p Policy) Max() (test1, test2, exam float64) {
	if p == PolicyWeighted {
		return 100, 100, 100
	}
	return 20, 20, 60
}

// Breakdown is the output of Grade.
type Breakdown struct {
	Total      float64
	Percentage int
	Grade      string
}

// Grade computes total, percentage and letter grade. Inputs are clamped to [0, max].
func Grade(p Policy, test1, test2, exam float64) Breakdown {
	max1, max2, maxExam := p.Max()
	t1 := decimal.NewFromFloat(clamp(test1, max1))
	t2 := decimal.NewFromFloat(clamp(test2, max2))
	ex := decimal.NewFromFloat(clamp(exam, maxExam))

	var total decimal.Decimal
	if p == PolicyWeighted {
		total = t1.Add(t2).Mul(weightTest).Add(ex.Mul(weightExam))
	} else {
		total = t1.Add(t2).Add(ex)
	}

	pct := int(total.Round(0).IntPart())
	tf, _ := total.Float64()
	return Breakdown{Total: tf, Percentage: pct, Grade: Letter(pct)}
}

// Letter maps a percentage onto its grade band; band minimums belong to the higher band.
func Letter(percentage int) string {
	for _, b := range gradeBands {
		if percentage >= b.min {
			return b.grade
		}
	}
	return "F"
}

func clamp(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
