// Package functions provides the built-in "core:" function library used in
// expressions such as core:concat('a', ${b}).
package functions

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/rehearsal/pkg/registry"
	"github.com/google/uuid"
)

// CorePrefix is the library prefix of the built-in functions.
const CorePrefix = "core"

const maxRandomLength = 1000

// RegisterCore registers the core library into r.
func RegisterCore(r *registry.Functions) {
	for name, fn := range map[string]registry.Function{
		"concat":       fnConcat,
		"upperCase":    fnUpperCase,
		"lowerCase":    fnLowerCase,
		"substring":    fnSubstring,
		"length":       fnLength,
		"randomNumber": fnRandomNumber,
		"randomString": fnRandomString,
		"randomUUID":   fnRandomUUID,
		"currentDate":  fnCurrentDate,
		"sum":          fnSum,
		"escapeJson":   fnEscapeJSON,
	} {
		r.Register(CorePrefix, name, fn)
	}
}

func fnConcat(args []string) (string, error) {
	return strings.Join(args, ""), nil
}

func fnUpperCase(args []string) (string, error) {
	if err := exactly("upperCase", args, 1); err != nil {
		return "", err
	}
	return strings.ToUpper(args[0]), nil
}

func fnLowerCase(args []string) (string, error) {
	if err := exactly("lowerCase", args, 1); err != nil {
		return "", err
	}
	return strings.ToLower(args[0]), nil
}

// fnSubstring returns s[begin:end] over runes. Usage: substring(s, begin[, end])
func fnSubstring(args []string) (string, error) {
	if len(args) < 2 || len(args) > 3 {
		return "", fmt.Errorf("substring(s, begin[, end]) requires 2 or 3 arguments")
	}
	runes := []rune(args[0])
	begin, err := strconv.Atoi(strings.TrimSpace(args[1]))
	if err != nil {
		return "", fmt.Errorf("invalid begin index: %w", err)
	}
	end := len(runes)
	if len(args) == 3 {
		if end, err = strconv.Atoi(strings.TrimSpace(args[2])); err != nil {
			return "", fmt.Errorf("invalid end index: %w", err)
		}
	}
	if begin < 0 || end > len(runes) || begin > end {
		return "", fmt.Errorf("substring bounds [%d:%d] out of range for length %d", begin, end, len(runes))
	}
	return string(runes[begin:end]), nil
}

func fnLength(args []string) (string, error) {
	if err := exactly("length", args, 1); err != nil {
		return "", err
	}
	return strconv.Itoa(len([]rune(args[0]))), nil
}

// fnRandomNumber generates a number with the given count of digits, never starting with zero.
func fnRandomNumber(args []string) (string, error) {
	length, err := lengthArg("randomNumber", args)
	if err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i := range out {
		lo := int64(0)
		if i == 0 {
			lo = 1
		}
		n, err := rand.Int(rand.Reader, big.NewInt(10-lo))
		if err != nil {
			return "", err
		}
		out[i] = byte('0' + lo + n.Int64())
	}
	return string(out), nil
}

// fnRandomString generates a random alphanumeric string of the specified length.
func fnRandomString(args []string) (string, error) {
	length, err := lengthArg("randomString", args)
	if err != nil {
		return "", err
	}
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		out[i] = charset[n.Int64()]
	}
	return string(out), nil
}

func fnRandomUUID(args []string) (string, error) {
	if len(args) != 0 {
		return "", fmt.Errorf("randomUUID() takes no arguments")
	}
	return uuid.NewString(), nil
}

// fnCurrentDate formats the current time using Go's reference layout.
// Usage: currentDate() or currentDate('2006-01-02')
func fnCurrentDate(args []string) (string, error) {
	layout := time.RFC3339
	if len(args) > 1 {
		return "", fmt.Errorf("currentDate([layout]) takes at most one argument")
	}
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		layout = args[0]
	}
	return time.Now().Format(layout), nil
}

// fnSum adds integer or decimal arguments. Integers stay integers.
func fnSum(args []string) (string, error) {
	var (
		isum    int64
		fsum    float64
		decimal bool
	)
	for _, a := range args {
		a = strings.TrimSpace(a)
		if i, err := strconv.ParseInt(a, 10, 64); err == nil {
			isum += i
			fsum += float64(i)
			continue
		}
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return "", fmt.Errorf("sum: %q is not a number", a)
		}
		decimal = true
		fsum += f
	}
	if decimal {
		return strconv.FormatFloat(fsum, 'f', -1, 64), nil
	}
	return strconv.FormatInt(isum, 10), nil
}

func fnEscapeJSON(args []string) (string, error) {
	if err := exactly("escapeJson", args, 1); err != nil {
		return "", err
	}
	b, err := json.Marshal(args[0])
	if err != nil {
		return "", err
	}
	return string(b[1 : len(b)-1]), nil
}

func exactly(name string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s() requires exactly %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func lengthArg(name string, args []string) (int, error) {
	if err := exactly(name, args, 1); err != nil {
		return 0, err
	}
	length, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return 0, fmt.Errorf("invalid length: %w", err)
	}
	if length <= 0 {
		return 0, fmt.Errorf("length must be positive")
	}
	if length > maxRandomLength {
		return 0, fmt.Errorf("length must be <= %d", maxRandomLength)
	}
	return length, nil
}
