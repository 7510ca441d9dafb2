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

package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// MirrorFile opens (creating if needed) a session log file in the logs/
// subdirectory of baseDir (baseDir/logs/<sessionName>.log) and returns a writer that duplicates output to
// both w and the file, plus a closer the caller should defer. A session
// banner line is written to the file immediately so operators tailing it
// can see where one run ends and the next begins.
//
// If baseDir is empty, mirroring is disabled and w is returned unchanged.
func MirrorFile(w io.Writer, baseDir, sessionName string) (io.Writer, func() error, error) {
	if baseDir == "" {
		return w, func() error { return nil }, nil
	}

	logsDir := filepath.Join(baseDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create logs directory: %w", err)
	}

	path := filepath.Join(logsDir, sessionName+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open session log file: %w", err)
	}

	banner := fmt.Sprintf("==== session start %s (pid %d) ====\n", time.Now().UTC().Format(time.RFC3339), os.Getpid())
	if _, err := f.WriteString(banner); err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("write session banner: %w", err)
	}

	return io.MultiWriter(w, f), f.Close, nil
}
