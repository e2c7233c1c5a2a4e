package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTestStart    EventType = "test_start"
	EventTestFinish   EventType = "test_finish"
	EventActionStart  EventType = "action_start"
	EventActionFinish EventType = "action_finish"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	TestName  string    `json:"test_name"`
}

// TestEvent is emitted when a run starts and when its result is finalized.
type TestEvent struct {
	EventBase
	// Result is nil for EventTestStart.
	Result *TestResult `json:"result,omitempty"`
}

// ActionEvent wraps one action execution.
type ActionEvent struct {
	EventBase
	Action      string        `json:"action"`
	Description string        `json:"description,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Err         error         `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnTestStart    func(context.Context, *TestEvent)
	OnTestFinish   func(context.Context, *TestEvent)
	OnActionStart  func(context.Context, *ActionEvent)
	OnActionFinish func(context.Context, *ActionEvent)
}

// ComposeHooks returns hooks that invoke each of the given hooks in order.
func ComposeHooks(hooks ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTestStart: func(ctx context.Context, e *TestEvent) {
			for _, h := range hooks {
				if h.OnTestStart != nil {
					h.OnTestStart(ctx, e)
				}
			}
		},
		OnTestFinish: func(ctx context.Context, e *TestEvent) {
			for _, h := range hooks {
				if h.OnTestFinish != nil {
					h.OnTestFinish(ctx, e)
				}
			}
		},
		OnActionStart: func(ctx context.Context, e *ActionEvent) {
			for _, h := range hooks {
				if h.OnActionStart != nil {
					h.OnActionStart(ctx, e)
				}
			}
		},
		OnActionFinish: func(ctx context.Context, e *ActionEvent) {
			for _, h := range hooks {
				if h.OnActionFinish != nil {
					h.OnActionFinish(ctx, e)
				}
			}
		},
	}
}
