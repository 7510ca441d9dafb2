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

package router

import (
	"sync"

	"golang.org/x/time/rate"
)

// CallRateLimiter throttles outgoing downstream tool calls per endpoint, so
// a fan-out burst against a struggling endpoint doesn't pile on faster than
// it can drain. One token bucket is created per endpoint on first use.
type CallRateLimiter struct {
	callsPerSecond float64
	burst          int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewCallRateLimiter creates a limiter allowing callsPerSecond sustained
// calls (with bursts of up to burst calls) per endpoint. A non-positive
// callsPerSecond disables limiting entirely.
func NewCallRateLimiter(callsPerSecond float64, burst int) *CallRateLimiter {
	return &CallRateLimiter{
		callsPerSecond: callsPerSecond,
		burst:          burst,
		limiters:       make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a call to url may proceed now. A nil receiver or a
// non-positive configured rate always allows the call.
func (l *CallRateLimiter) Allow(url string) bool {
	if l == nil || l.callsPerSecond <= 0 {
		return true
	}
	return l.limiterFor(url).Allow()
}

func (l *CallRateLimiter) limiterFor(url string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[url]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.callsPerSecond), l.burst)
		l.limiters[url] = lim
	}
	return lim
}
