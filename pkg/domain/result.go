package domain

import "time"

// Outcome is the final verdict of a test run.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
	OutcomeSkipped Outcome = "SKIPPED"
)

// TestResult is created once when a run is finalized and is returned by value.
type TestResult struct {
	TestName     string    `json:"test_name"`
	TestClass    string    `json:"test_class,omitempty"`
	Outcome      Outcome   `json:"outcome"`
	Cause        error     `json:"-"`
	CauseMessage string    `json:"cause,omitempty"`
	FailedAction string    `json:"failed_action,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// NewTestResult builds a result, deriving the serialisable cause fields from cause.
func NewTestResult(name, class string, outcome Outcome, cause error, started, finished time.Time) TestResult {
	r := TestResult{
		TestName:   name,
		TestClass:  class,
		Outcome:    outcome,
		Cause:      cause,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if cause != nil {
		r.CauseMessage = cause.Error()
		r.FailedAction = FailedAction(cause)
	}
	return r
}

// Duration is the wall time between start and finalization.
func (r TestResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r TestResult) Passed() bool  { return r.Outcome == OutcomeSuccess }
func (r TestResult) Failed() bool  { return r.Outcome == OutcomeFailure }
func (r TestResult) Skipped() bool { return r.Outcome == OutcomeSkipped }
