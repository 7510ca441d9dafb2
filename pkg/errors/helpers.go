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

package errors

import (
	"errors"
	"time"
)

// Timeout builds a TimeoutError for an operation that exceeded its
// deadline. cause is typically the context error observed when the
// downstream call expired.
func Timeout(operation string, deadline time.Duration, cause error) *TimeoutError {
	return &TimeoutError{Operation: operation, Duration: deadline, Cause: cause}
}

// Config builds a ConfigError for a startup configuration problem. Config
// errors are fatal: the router refuses to start rather than running with a
// partial endpoint set the operator didn't ask for.
func Config(key, reason string) *ConfigError {
	return &ConfigError{Key: key, Reason: reason}
}

// AsTimeout reports whether err's chain contains a TimeoutError, returning
// it so callers can surface the timed-out operation and its deadline in a
// tool result instead of string-matching "deadline exceeded".
func AsTimeout(err error) (*TimeoutError, bool) {
	var terr *TimeoutError
	if errors.As(err, &terr) {
		return terr, true
	}
	return nil, false
}

// AsConfig reports whether err's chain contains a ConfigError, returning
// it so the CLI can print the offending key alongside the reason.
func AsConfig(err error) (*ConfigError, bool) {
	var cerr *ConfigError
	if errors.As(err, &cerr) {
		return cerr, true
	}
	return nil, false
}
