package malpractice

import (
	"fmt"
	"strings"

	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	DefaultWarnLimit  = 2
	DefaultTotalLimit = 3
)

// Policy is the dual-counter escalation rule. A kind seen up to WarnLimit
// times pauses the exam with a dismissible warning. Once the total across all
// kinds reaches TotalLimit the exam is auto-evaluated. The two checks are
// independent; when both hold, auto-evaluation wins.
type Policy struct {
	WarnLimit  int
	TotalLimit int
}

// DefaultPolicy returns the 2-per-kind, 3-total policy.
func DefaultPolicy() Policy {
	return Policy{WarnLimit: DefaultWarnLimit, TotalLimit: DefaultTotalLimit}
}

// Decision is what a session must do after recording a violation.
type Decision struct {
	Kind         model.ViolationKind
	KindCount    int
	Total        int
	Warn         bool
	AutoEvaluate bool
}

// Evaluate applies the policy to post-increment counters.
func (p Policy) Evaluate(kind model.ViolationKind, kindCount, total int) Decision {
	return Decision{
		Kind:         kind,
		KindCount:    kindCount,
		Total:        total,
		Warn:         kindCount >= 1 && kindCount <= p.WarnLimit,
		AutoEvaluate: total >= p.TotalLimit,
	}
}

// WarningMessage is the text shown with a dismissible warning.
func (p Policy) WarningMessage(kind model.ViolationKind, count int) string {
	return fmt.Sprintf("Warning: Suspicious %s detected (%d/%d). Further attempts will lead to auto-evaluation.",
		strings.ReplaceAll(string(kind), "_", " "), count, p.WarnLimit)
}
