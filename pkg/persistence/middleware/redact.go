package middleware

import (
	"context"
	"errors"
	"regexp"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/ports"
)

// Mask replaces redacted text.
const Mask = "***"

type redactMiddleware struct {
	next     ports.ResultStore
	patterns []*regexp.Regexp
}

// NewRedactMiddleware creates a middleware that masks every match of the
// patterns in failure causes before they are stored. Causes often quote
// message payloads, which may carry credentials or personal data.
func NewRedactMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		patterns[i] = re
	}
	return func(next ports.ResultStore) ports.ResultStore {
		return &redactMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *redactMiddleware) Save(ctx context.Context, result domain.TestResult) error {
	if result.CauseMessage == "" {
		return m.next.Save(ctx, result)
	}
	masked := result.CauseMessage
	for _, p := range m.patterns {
		masked = p.ReplaceAllString(masked, Mask)
	}
	if masked != result.CauseMessage {
		// The error chain still holds the original text.
		result.CauseMessage = masked
		result.Cause = errors.New(masked)
	}
	return m.next.Save(ctx, result)
}

func (m *redactMiddleware) Load(ctx context.Context, testName string) (domain.TestResult, error) {
	return m.next.Load(ctx, testName)
}

func (m *redactMiddleware) Delete(ctx context.Context, testName string) error {
	return m.next.Delete(ctx, testName)
}

func (m *redactMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
