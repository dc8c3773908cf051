// Package errors derives stable tag values from Go errors for metrics and
// structured logs.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/danavision/discovery-go/internal/errors"
)

// Classify returns a normalized error class for tagging metrics/logs.
//
// Classification order: AppErrors report their taxonomy code (forbidden,
// provider_error, fetch_error, ...), which is already a stable snake_case
// vocabulary; context errors map to "timeout" and "cancelled"; anything
// else falls back to the innermost concrete type name. The result is low
// cardinality so it is safe to use as a metric tag.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}

	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "cancelled"
	}

	return typeName(innermost(err))
}

// innermost follows the Unwrap chain to the root cause, which carries
// better signal than the wrapping layers.
func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// typeName renders the concrete type of err as a snake_case-ish tag,
// e.g. *net.OpError becomes net_operror.
func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
