// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package r30x

import (
	"fmt"
	"os"
	"time"
)

// debugEnabled gates console debug output. Session log files receive debug
// lines regardless, so a field log can be collected without flooding the
// terminal.
var debugEnabled = os.Getenv("R30X_DEBUG") != "" || os.Getenv("DEBUG") != ""

// SetDebugEnabled switches console debug output on or off at runtime,
// overriding the R30X_DEBUG / DEBUG environment variables.
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// Debugf records a debug line. The line always reaches the session log
// when one is open (see InitSessionLog) and reaches stdout only when debug
// output is enabled.
func Debugf(format string, args ...any) {
	emitDebug(fmt.Sprintf(format, args...))
}

// Debugln records a debug line from plain arguments.
func Debugln(args ...any) {
	emitDebug(fmt.Sprint(args...))
}

func debugf(format string, args ...any) {
	Debugf(format, args...)
}

func emitDebug(message string) {
	if w := sessionLogWriter; w != nil {
		_, _ = fmt.Fprintf(w, "%s DEBUG: %s\n", time.Now().Format("15:04:05.000"), message)
	}
	if debugEnabled {
		_, _ = fmt.Printf("DEBUG: %s\n", message)
	}
}
