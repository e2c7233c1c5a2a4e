package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Extract reads values out of a JSON body, one per variable.
// Paths use JSONPath syntax ($.foo.bar, $.items[0].id, $.data[*].name) and
// are converted to gjson paths. All failed extractions are reported together.
func Extract(body []byte, rules map[string]string) (map[string]any, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON payload")
	}

	result := make(map[string]any, len(rules))
	var errs []error

	for varName, jsonPath := range rules {
		value := gjson.GetBytes(body, convertJSONPath(jsonPath))
		if !value.Exists() {
			errs = append(errs, fmt.Errorf("path %q not found for variable %q", jsonPath, varName))
			continue
		}
		result[varName] = value.Value()
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

// convertJSONPath converts JSONPath syntax to gjson path format.
func convertJSONPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")

	var b strings.Builder
	for i := 0; i < len(path); i++ {
		if path[i] == '[' {
			if j := strings.IndexByte(path[i:], ']'); j > 0 {
				content := path[i+1 : i+j]
				if content == "*" {
					b.WriteString(".#")
				} else {
					b.WriteByte('.')
					b.WriteString(strings.Trim(content, `'"`))
				}
				i += j
				continue
			}
		}
		b.WriteByte(path[i])
	}
	return strings.TrimPrefix(b.String(), ".")
}
