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
	"testing"
	"time"

	routererrors "github.com/tombee/mcprouter/pkg/errors"
)

func TestTimeoutConstructor(t *testing.T) {
	cause := errors.New("context deadline exceeded")
	err := routererrors.Timeout("tool call kusto_query", 30*time.Second, cause)

	if err.Operation != "tool call kusto_query" {
		t.Errorf("Operation = %q", err.Operation)
	}
	if err.Duration != 30*time.Second {
		t.Errorf("Duration = %v", err.Duration)
	}
	if !errors.Is(err, cause) {
		t.Error("Timeout should preserve the cause in the chain")
	}
}

func TestConfigConstructor(t *testing.T) {
	err := routererrors.Config("mappings", "no endpoint mappings configured")

	if err.Key != "mappings" {
		t.Errorf("Key = %q", err.Key)
	}
	if err.Reason != "no endpoint mappings configured" {
		t.Errorf("Reason = %q", err.Reason)
	}
}

func TestAsTimeout(t *testing.T) {
	t.Run("finds timeout through a wrapped chain", func(t *testing.T) {
		inner := routererrors.Timeout("ping", 10*time.Second, nil)
		wrapped := fmt.Errorf("endpoint https://c1.example: %w", inner)

		terr, ok := routererrors.AsTimeout(wrapped)
		if !ok {
			t.Fatal("AsTimeout should find the TimeoutError")
		}
		if terr.Operation != "ping" {
			t.Errorf("Operation = %q", terr.Operation)
		}
	})

	t.Run("rejects non-timeout errors", func(t *testing.T) {
		if _, ok := routererrors.AsTimeout(errors.New("connection refused")); ok {
			t.Error("AsTimeout should not match an unrelated error")
		}
	})

	t.Run("rejects nil", func(t *testing.T) {
		if _, ok := routererrors.AsTimeout(nil); ok {
			t.Error("AsTimeout(nil) should report false")
		}
	})
}

func TestAsConfig(t *testing.T) {
	t.Run("finds config error through a wrapped chain", func(t *testing.T) {
		inner := routererrors.Config("mappings", "empty url")
		wrapped := fmt.Errorf("resolving startup configuration: %w", inner)

		cerr, ok := routererrors.AsConfig(wrapped)
		if !ok {
			t.Fatal("AsConfig should find the ConfigError")
		}
		if cerr.Key != "mappings" {
			t.Errorf("Key = %q", cerr.Key)
		}
	})

	t.Run("rejects non-config errors", func(t *testing.T) {
		if _, ok := routererrors.AsConfig(errors.New("spawn failed")); ok {
			t.Error("AsConfig should not match an unrelated error")
		}
	})
}
