package tui

import (
	"fmt"
	"time"

	"github.com/aretw0/rehearsal/pkg/domain"
)

const (
	colorPass = "#22c55e"
	colorFail = "#ef4444"
	colorSkip = "#eab308"
	colorDim  = "#94a3b8"
)

func (p *Printer) badge(o domain.Outcome) string {
	switch o {
	case domain.OutcomeSuccess:
		return p.paint(" PASS ", colorPass).Bold().String()
	case domain.OutcomeFailure:
		return p.paint(" FAIL ", colorFail).Bold().String()
	default:
		return p.paint(" SKIP ", colorSkip).Bold().String()
	}
}

// Result prints one line per result, followed by the cause when there is one.
func (p *Printer) Result(r domain.TestResult) {
	fmt.Fprintf(p.out, "%s %s %s\n", p.badge(r.Outcome), r.TestName,
		p.paint("("+r.Duration().Round(time.Millisecond).String()+")", colorDim))
	if r.CauseMessage == "" {
		return
	}
	if r.FailedAction != "" {
		fmt.Fprintf(p.out, "       action: %s\n", r.FailedAction)
	}
	fmt.Fprintf(p.out, "       cause:  %s\n", r.CauseMessage)
}

// Summary prints the totals of a batch of results.
func (p *Printer) Summary(results []domain.TestResult) {
	var passed, failed, skipped int
	for _, r := range results {
		switch r.Outcome {
		case domain.OutcomeSuccess:
			passed++
		case domain.OutcomeFailure:
			failed++
		default:
			skipped++
		}
	}
	fmt.Fprintf(p.out, "\n%d tests: %s, %s, %s\n", len(results),
		p.paint(fmt.Sprintf("%d passed", passed), colorPass),
		p.paint(fmt.Sprintf("%d failed", failed), colorFail),
		p.paint(fmt.Sprintf("%d skipped", skipped), colorSkip))
}
