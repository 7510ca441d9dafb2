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

import "syscall"

// syscallSignalZero returns the signal used to probe whether a process is
// still alive without affecting it.
func syscallSignalZero() syscall.Signal {
	return syscall.Signal(0)
}

// terminateSignal returns the signal sent during graceful teardown before
// falling back to an unconditional kill.
func terminateSignal() syscall.Signal {
	return syscall.SIGTERM
}
