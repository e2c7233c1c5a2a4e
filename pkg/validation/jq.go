package validation

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/itchyny/gojq"
)

// JQ is a compiled jq expression used as a payload assertion, e.g.
// `.items | length == 2`.
type JQ struct {
	src  string
	code *gojq.Code
}

// CompileJQ parses and compiles src so syntax errors surface when the
// assertion is built, not when it runs.
func CompileJQ(src string) (*JQ, error) {
	parsed, err := gojq.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid jq expression %q: %v", domain.ErrInvalidConfiguration, src, err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot compile jq expression %q: %v", domain.ErrInvalidConfiguration, src, err)
	}
	return &JQ{src: src, code: code}, nil
}

func (q *JQ) String() string { return q.src }

// Evaluate runs the expression against payload and returns its results.
// JSON text payloads are decoded first.
func (q *JQ) Evaluate(payload any) ([]any, error) {
	input, err := normalize(payload)
	if err != nil {
		return nil, err
	}
	iter := q.code.Run(input)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq %q: %w", q.src, err)
		}
		results = append(results, v)
	}
	return results, nil
}

// Assert fails with a ValidationError unless every result is truthy
// (neither false nor null) and there is at least one.
func (q *JQ) Assert(payload any) error {
	results, err := q.Evaluate(payload)
	if err != nil {
		return &domain.ValidationError{Field: "payload", Expected: q.src, Reason: err.Error()}
	}
	if len(results) == 0 {
		return &domain.ValidationError{Field: "payload", Expected: q.src, Reason: "jq produced no result"}
	}
	for _, r := range results {
		if r == nil || r == false {
			return &domain.ValidationError{Field: "payload", Expected: q.src, Actual: r, Reason: "jq assertion not satisfied"}
		}
	}
	return nil
}

// normalize converts payloads into the JSON-compatible types gojq accepts.
func normalize(payload any) (any, error) {
	var raw []byte
	switch p := payload.(type) {
	case string:
		raw = []byte(p)
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("payload is not JSON encodable: %w", err)
		}
		raw = b
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("payload is not JSON: %w", err)
	}
	return out, nil
}
