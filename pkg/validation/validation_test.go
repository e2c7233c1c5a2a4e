package validation

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/aretw0/rehearsal/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matchers() *registry.Matchers {
	r := registry.NewMatchers()
	RegisterDefaultMatchers(r)
	return r
}

func TestValue_Matchers(t *testing.T) {
	m := matchers()
	tests := []struct {
		expected string
		actual   string
		ok       bool
	}{
		{"plain", "plain", true},
		{"plain", "other", false},
		{"@ignore@", "anything", true},
		{"@equalsIgnoreCase('HeLLo')@", "hello", true},
		{"@contains('world')@", "hello world", true},
		{"@contains('mars')@", "hello world", false},
		{"@startsWith(hel)@", "hello", true},
		{"@endsWith('lo')@", "hello", true},
		{"@matches('[a-z]+-[0-9]+')@", "abc-123", true},
		{"@matches('[0-9]+')@", "abc-123", false},
		{"@isNumber@", "3.14", true},
		{"@isNumber()@", "pi", false},
		{"@greaterThan(10)@", "11", true},
		{"@greaterThan(10)@", "10", false},
		{"@lowerThan('2.5')@", "2", true},
		{"@notEmpty@", " ", false},
		{"@isUUID@", "7d6c1b7e-3b1f-4c4e-9a5a-0b8f1f1d2c3e", true},
		{"@isUUID@", "not-a-uuid", false},
	}
	for _, tt := range tests {
		t.Run(tt.expected+"/"+tt.actual, func(t *testing.T) {
			err := Value(m, "field", tt.expected, tt.actual)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, domain.ErrValidationFailed), "got %v", err)
			}
		})
	}
}

func TestValue_Errors(t *testing.T) {
	m := matchers()
	err := Value(m, "f", "@noSuchMatcher@", "x")
	assert.True(t, errors.Is(err, domain.ErrUnknownFunction))

	err = Value(m, "f", "@contains('a','b')@", "x")
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}

func TestHeaders(t *testing.T) {
	m := matchers()
	msg := domain.NewMessage("x").SetHeader("operation", "greet")

	assert.NoError(t, Headers(m, map[string]string{"operation": "greet", "id": "@isUUID@", "absent": "@ignore@"}, msg))

	err := Headers(m, map[string]string{"missing": "x"}, msg)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "header missing", ve.Reason)
}

func TestPayload_JSONStructural(t *testing.T) {
	m := matchers()
	msg := domain.NewMessage(map[string]any{
		"id":    "7d6c1b7e-3b1f-4c4e-9a5a-0b8f1f1d2c3e",
		"name":  "Alice",
		"age":   30,
		"tags":  []any{"a", "b"},
		"extra": true,
	})

	assert.NoError(t, Payload(m, `{"id":"@isUUID@","name":"Alice","age":30,"tags":["a","@ignore@"]}`, msg))

	err := Payload(m, `{"name":"Bob"}`, msg)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "$.name", ve.Field)

	err = Payload(m, `{"tags":["a"]}`, msg)
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "array length mismatch", ve.Reason)

	err = Payload(m, `{"missing":1}`, msg)
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "$.missing", ve.Field)

	assert.NoError(t, Payload(m, `@contains('Alice')@`, msg))
}

func TestPayload_Text(t *testing.T) {
	m := matchers()
	assert.NoError(t, Payload(m, "hello", domain.NewMessage("hello")))
	assert.Error(t, Payload(m, "hello", domain.NewMessage("bye")))
}

func TestExtract(t *testing.T) {
	body := []byte(`{"user":{"id":7,"name":"ann"},"items":[{"id":"a"},{"id":"b"}]}`)
	got, err := Extract(body, map[string]string{
		"userId": "$.user.id",
		"first":  "$.items[0].id",
		"all":    "$.items[*].id",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(7), got["userId"])
	assert.Equal(t, "a", got["first"])
	assert.Equal(t, []any{"a", "b"}, got["all"])

	_, err = Extract(body, map[string]string{"x": "$.nope", "y": "$.also.nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$.nope")
	assert.Contains(t, err.Error(), "$.also.nope")

	_, err = Extract([]byte("not json"), map[string]string{"x": "$.a"})
	assert.Error(t, err)

	none, err := Extract(body, nil)
	assert.NoError(t, err)
	assert.Nil(t, none)
}

func TestConvertJSONPath(t *testing.T) {
	assert.Equal(t, "foo.bar", convertJSONPath("$.foo.bar"))
	assert.Equal(t, "items.0.id", convertJSONPath("$.items[0].id"))
	assert.Equal(t, "data.#.name", convertJSONPath("$.data[*].name"))
	assert.Equal(t, "plain", convertJSONPath("plain"))
}

func TestJQ(t *testing.T) {
	q, err := CompileJQ(`.items | length == 2`)
	require.NoError(t, err)
	assert.NoError(t, q.Assert(`{"items":[1,2]}`))
	assert.True(t, errors.Is(q.Assert(`{"items":[1]}`), domain.ErrValidationFailed))

	raw, _ := json.Marshal(map[string]any{"a": 1})
	sel, err := CompileJQ(`.a`)
	require.NoError(t, err)
	vals, err := sel.Evaluate(raw)
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.EqualValues(t, 1, vals[0])

	assert.True(t, errors.Is(sel.Assert("not json"), domain.ErrValidationFailed))

	missing, _ := CompileJQ(`.missing`)
	assert.Error(t, missing.Assert(`{}`), "null is falsy")

	_, err = CompileJQ(`.[`)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}
