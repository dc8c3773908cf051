package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "message only",
			err:  &AppError{Code: ErrCodeNotFound, Message: "job not found"},
			want: "job not found",
		},
		{
			name: "message with cause",
			err: &AppError{
				Code:    ErrCodeInternal,
				Message: "reserve job",
				Cause:   errors.New("connection refused"),
			},
			want: "reserve job: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &AppError{Code: ErrCodeInternal, Message: "wrapped", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}
	if (&AppError{Code: ErrCodeInternal, Message: "no cause"}).Unwrap() != nil {
		t.Error("Unwrap() without a cause should return nil")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		wantCode  ErrorCode
		wantMsg   string
		wantField string
	}{
		{name: "NotFound", err: NotFound("job not found"), wantCode: ErrCodeNotFound, wantMsg: "job not found"},
		{name: "NotFoundf", err: NotFoundf("job %s not found", "abc"), wantCode: ErrCodeNotFound, wantMsg: "job abc not found"},
		{name: "Conflict", err: Conflict("domain already exists"), wantCode: ErrCodeConflict, wantMsg: "domain already exists"},
		{name: "Validation", err: Validation("bad input"), wantCode: ErrCodeValidation, wantMsg: "bad input"},
		{name: "ValidationField", err: ValidationField("query", "query is required"), wantCode: ErrCodeValidation, wantMsg: "query is required", wantField: "query"},
		{name: "Internal", err: Internal("boom"), wantCode: ErrCodeInternal, wantMsg: "boom"},
		{name: "Forbidden", err: Forbidden("job belongs to another user"), wantCode: ErrCodeForbidden, wantMsg: "job belongs to another user"},
		{name: "InvalidState", err: InvalidState("job is not active"), wantCode: ErrCodeInvalidState, wantMsg: "job is not active"},
		{name: "InvalidStatef", err: InvalidStatef("job is %s", "completed"), wantCode: ErrCodeInvalidState, wantMsg: "job is completed"},
		{name: "ProviderUnavailable", err: ProviderUnavailable("no provider configured"), wantCode: ErrCodeProviderUnavailable, wantMsg: "no provider configured"},
		{name: "Parse", err: Parse("no JSON object in answer"), wantCode: ErrCodeParse, wantMsg: "no JSON object in answer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.wantCode)
			}
			if tt.err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.wantMsg)
			}
			if tt.err.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", tt.err.Field, tt.wantField)
			}
		})
	}
}

func TestProvider_PreservesCause(t *testing.T) {
	cause := errors.New("502 bad gateway")
	err := Provider("openai-primary", cause)

	if err.Code != ErrCodeProvider {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeProvider)
	}
	if !errors.Is(err, cause) {
		t.Error("Provider() should preserve the cause")
	}
}

func TestFetch_PreservesCause(t *testing.T) {
	cause := errors.New("timeout")
	err := Fetch("https://example.com/search?q=x", cause)

	if err.Code != ErrCodeFetch {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeFetch)
	}
	if !errors.Is(err, cause) {
		t.Error("Fetch() should preserve the cause")
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		pred func(error) bool
		hit  error
		miss error
	}{
		{name: "IsNotFound", pred: IsNotFound, hit: NotFound("x"), miss: Conflict("x")},
		{name: "IsValidation", pred: IsValidation, hit: Validation("x"), miss: NotFound("x")},
		{name: "IsForbidden", pred: IsForbidden, hit: Forbidden("x"), miss: InvalidState("x")},
		{name: "IsInvalidState", pred: IsInvalidState, hit: InvalidState("x"), miss: Forbidden("x")},
		{name: "IsProviderUnavailable", pred: IsProviderUnavailable, hit: ProviderUnavailable("x"), miss: Provider("p", errors.New("x"))},
		{name: "IsProvider", pred: IsProvider, hit: Provider("p", errors.New("x")), miss: ProviderUnavailable("x")},
		{name: "IsParse", pred: IsParse, hit: Parse("x"), miss: Validation("x")},
		{name: "IsFetch", pred: IsFetch, hit: Fetch("u", errors.New("x")), miss: Parse("x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.pred(tt.hit) {
				t.Error("predicate should match its own code")
			}
			if tt.pred(tt.miss) {
				t.Error("predicate should not match a different code")
			}
			if tt.pred(nil) {
				t.Error("predicate should not match nil")
			}
			if tt.pred(errors.New("plain")) {
				t.Error("predicate should not match a plain error")
			}
		})
	}
}

func TestPredicates_SeeThroughWrapping(t *testing.T) {
	inner := Forbidden("job belongs to another user")
	wrapped := fmt.Errorf("cancel job: %w", inner)

	if !IsForbidden(wrapped) {
		t.Error("IsForbidden should match through fmt.Errorf %w wrapping")
	}
	if GetCode(wrapped) != ErrCodeForbidden {
		t.Errorf("GetCode(wrapped) = %v, want %v", GetCode(wrapped), ErrCodeForbidden)
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(Validation("x")); got != ErrCodeValidation {
		t.Errorf("GetCode = %v, want %v", got, ErrCodeValidation)
	}
	if got := GetCode(errors.New("plain")); got != "" {
		t.Errorf("GetCode(plain) = %v, want empty", got)
	}
	if got := GetCode(nil); got != "" {
		t.Errorf("GetCode(nil) = %v, want empty", got)
	}
}

func TestGetField(t *testing.T) {
	if got := GetField(ValidationField("postal_code", "required")); got != "postal_code" {
		t.Errorf("GetField = %q, want %q", got, "postal_code")
	}
	if got := GetField(Validation("no field")); got != "" {
		t.Errorf("GetField = %q, want empty", got)
	}
	if got := GetField(errors.New("plain")); got != "" {
		t.Errorf("GetField(plain) = %q, want empty", got)
	}
}
