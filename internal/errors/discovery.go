package errors

import "fmt"

const (
	// ErrCodeForbidden indicates the caller does not own the resource.
	ErrCodeForbidden ErrorCode = "forbidden"
	// ErrCodeInvalidState indicates the operation is not valid for the
	// resource's current state (e.g. cancelling a completed job).
	ErrCodeInvalidState ErrorCode = "invalid_state"
	// ErrCodeProviderUnavailable indicates no usable external provider is
	// configured or reachable. Fatal to the requesting run.
	ErrCodeProviderUnavailable ErrorCode = "provider_unavailable"
	// ErrCodeProvider indicates a configured provider returned an error.
	// Recoverable; callers degrade to lower-confidence results.
	ErrCodeProvider ErrorCode = "provider_error"
	// ErrCodeParse indicates structured extraction from provider output failed.
	ErrCodeParse ErrorCode = "parse_error"
	// ErrCodeFetch indicates a single URL fetch failed. Never fatal by itself.
	ErrCodeFetch ErrorCode = "fetch_error"
)

// Forbidden creates a new Forbidden error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    ErrCodeForbidden,
		Message: message,
	}
}

// InvalidState creates a new InvalidState error.
func InvalidState(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidState,
		Message: message,
	}
}

// InvalidStatef creates a new InvalidState error with formatted message.
func InvalidStatef(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidState,
		Message: fmt.Sprintf(format, args...),
	}
}

// ProviderUnavailable creates a new ProviderUnavailable error.
func ProviderUnavailable(message string) *AppError {
	return &AppError{
		Code:    ErrCodeProviderUnavailable,
		Message: message,
	}
}

// Provider creates a new provider error, preserving the cause.
func Provider(provider string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeProvider,
		Message: fmt.Sprintf("provider %s failed", provider),
		Cause:   cause,
	}
}

// Parse creates a new parse error.
func Parse(message string) *AppError {
	return &AppError{
		Code:    ErrCodeParse,
		Message: message,
	}
}

// Fetch creates a new fetch error for a URL, preserving the cause.
func Fetch(url string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeFetch,
		Message: fmt.Sprintf("fetch %s failed", url),
		Cause:   cause,
	}
}

// IsForbidden checks if an error is a Forbidden error.
func IsForbidden(err error) bool {
	return isCode(err, ErrCodeForbidden)
}

// IsInvalidState checks if an error is an InvalidState error.
func IsInvalidState(err error) bool {
	return isCode(err, ErrCodeInvalidState)
}

// IsProviderUnavailable checks if an error is a ProviderUnavailable error.
func IsProviderUnavailable(err error) bool {
	return isCode(err, ErrCodeProviderUnavailable)
}

// IsProvider checks if an error is a provider error.
func IsProvider(err error) bool {
	return isCode(err, ErrCodeProvider)
}

// IsParse checks if an error is a parse error.
func IsParse(err error) bool {
	return isCode(err, ErrCodeParse)
}

// IsFetch checks if an error is a fetch error.
func IsFetch(err error) bool {
	return isCode(err, ErrCodeFetch)
}
