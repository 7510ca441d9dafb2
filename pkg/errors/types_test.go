// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	routererrors "github.com/tombee/mcprouter/pkg/errors"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *routererrors.ValidationError
		wantMsg string
	}{
		{
			name: "with field",
			err: &routererrors.ValidationError{
				Field:      "mapping",
				Message:    "URL is required",
				Suggestion: "Use --mapping URL=IDENTITY",
			},
			wantMsg: "validation failed on mapping: URL is required",
		},
		{
			name: "without field",
			err: &routererrors.ValidationError{
				Message:    "invalid format",
				Suggestion: "Check the input format",
			},
			wantMsg: "validation failed: invalid format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ValidationError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestNotFoundError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *routererrors.NotFoundError
		wantMsg string
	}{
		{
			name: "endpoint not found",
			err: &routererrors.NotFoundError{
				Resource: "endpoint",
				ID:       "https://c1.example",
			},
			wantMsg: "endpoint not found: https://c1.example",
		},
		{
			name: "tool not found",
			err: &routererrors.NotFoundError{
				Resource: "tool",
				ID:       "kusto_query",
			},
			wantMsg: "tool not found: kusto_query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("NotFoundError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConfigError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *routererrors.ConfigError
		wantMsg string
	}{
		{
			name: "with key",
			err: &routererrors.ConfigError{
				Key:    "mapping",
				Reason: "empty URL",
			},
			wantMsg: "config error at mapping: empty URL",
		},
		{
			name: "without key",
			err: &routererrors.ConfigError{
				Reason: "no mappings provided",
			},
			wantMsg: "config error: no mappings provided",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ConfigError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	cause := errors.New("file read error")
	err := &routererrors.ConfigError{
		Key:    "config",
		Reason: "failed to load",
		Cause:  cause,
	}

	if got := err.Unwrap(); got != cause {
		t.Errorf("ConfigError.Unwrap() = %v, want %v", got, cause)
	}
}

func TestTimeoutError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *routererrors.TimeoutError
		want    []string
		notWant []string
	}{
		{
			name: "ping timeout",
			err: &routererrors.TimeoutError{
				Operation: "ping",
				Duration:  10 * time.Second,
			},
			want:    []string{"ping", "10s"},
			notWant: []string{},
		},
		{
			name: "teardown timeout",
			err: &routererrors.TimeoutError{
				Operation: "teardown",
				Duration:  5 * time.Second,
			},
			want:    []string{"teardown", "5s"},
			notWant: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("TimeoutError.Error() = %q, want to contain %q", got, want)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(got, notWant) {
					t.Errorf("TimeoutError.Error() = %q, should not contain %q", got, notWant)
				}
			}
		})
	}
}

func TestTimeoutError_Unwrap(t *testing.T) {
	cause := errors.New("context deadline exceeded")
	err := &routererrors.TimeoutError{
		Operation: "test",
		Duration:  5 * time.Second,
		Cause:     cause,
	}

	if got := err.Unwrap(); got != cause {
		t.Errorf("TimeoutError.Unwrap() = %v, want %v", got, cause)
	}
}

// Test error wrapping with fmt.Errorf
func TestErrorWrapping(t *testing.T) {
	t.Run("ValidationError can be wrapped", func(t *testing.T) {
		original := &routererrors.ValidationError{
			Field:   "cluster",
			Message: "not configured",
		}
		wrapped := fmt.Errorf("dispatch: %w", original)

		var target *routererrors.ValidationError
		if !errors.As(wrapped, &target) {
			t.Error("errors.As should find ValidationError in wrapped error")
		}
		if target.Field != "cluster" {
			t.Errorf("unwrapped error Field = %q, want %q", target.Field, "cluster")
		}
	})

	t.Run("NotFoundError can be wrapped", func(t *testing.T) {
		original := &routererrors.NotFoundError{
			Resource: "endpoint",
			ID:       "https://c1.example",
		}
		wrapped := fmt.Errorf("routing call: %w", original)

		var target *routererrors.NotFoundError
		if !errors.As(wrapped, &target) {
			t.Error("errors.As should find NotFoundError in wrapped error")
		}
		if target.Resource != "endpoint" {
			t.Errorf("unwrapped error Resource = %q, want %q", target.Resource, "endpoint")
		}
	})

	t.Run("ConfigError preserves cause through wrapping", func(t *testing.T) {
		rootCause := errors.New("empty URL")
		configErr := &routererrors.ConfigError{
			Key:    "mapping",
			Reason: "missing required field",
			Cause:  rootCause,
		}
		wrapped := fmt.Errorf("parsing mapping: %w", configErr)

		var target *routererrors.ConfigError
		if !errors.As(wrapped, &target) {
			t.Error("errors.As should find ConfigError in wrapped error")
		}

		if target.Unwrap() != rootCause {
			t.Error("ConfigError.Unwrap() should return root cause")
		}
	})

	t.Run("TimeoutError preserves cause through wrapping", func(t *testing.T) {
		rootCause := errors.New("context deadline exceeded")
		timeoutErr := &routererrors.TimeoutError{
			Operation: "ping",
			Duration:  5 * time.Second,
			Cause:     rootCause,
		}
		wrapped := fmt.Errorf("health loop: %w", timeoutErr)

		var target *routererrors.TimeoutError
		if !errors.As(wrapped, &target) {
			t.Error("errors.As should find TimeoutError in wrapped error")
		}

		if target.Unwrap() != rootCause {
			t.Error("TimeoutError.Unwrap() should return root cause")
		}
	})
}

// Test errors.Is behavior
func TestErrorsIs(t *testing.T) {
	t.Run("errors.Is works with wrapped ValidationError", func(t *testing.T) {
		original := &routererrors.ValidationError{Field: "test"}
		wrapped := fmt.Errorf("wrapper: %w", original)

		if !errors.Is(wrapped, original) {
			t.Error("errors.Is should find original error in chain")
		}
	})

	t.Run("errors.Is works with wrapped NotFoundError", func(t *testing.T) {
		original := &routererrors.NotFoundError{Resource: "test", ID: "123"}
		wrapped := fmt.Errorf("wrapper: %w", original)

		if !errors.Is(wrapped, original) {
			t.Error("errors.Is should find original error in chain")
		}
	})
}
