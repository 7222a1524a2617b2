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

package detection

import (
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultBlocklist lists USB VID:PID pairs (uppercase hex) that detection
// must never probe. Empty today; entries belong here as soon as a device is
// found that misbehaves when a VfyPwd frame lands on it.
func DefaultBlocklist() []string {
	return nil
}

// IsBlocked reports whether vidpid appears in blocklist. Comparison is
// case-insensitive and ignores surrounding whitespace.
func IsBlocked(vidpid string, blocklist []string) bool {
	id := strings.TrimSpace(vidpid)
	for _, entry := range blocklist {
		if strings.EqualFold(id, strings.TrimSpace(entry)) {
			return true
		}
	}
	return false
}

// vidpidForms covers the descriptor spellings seen across platforms:
// "VID:1234 PID:5678", "VID=1234 PID=5678", "vendor=1234 product=5678" and
// the bare "1234:5678".
var vidpidForms = []*regexp.Regexp{
	regexp.MustCompile(`VID[:=]([0-9A-F]+).*?PID[:=]([0-9A-F]+)`),
	regexp.MustCompile(`VENDOR=([0-9A-F]+).*?PRODUCT=([0-9A-F]+)`),
	regexp.MustCompile(`^([0-9A-F]+):([0-9A-F]+)$`),
}

// ParseVIDPID extracts a canonical uppercase "VID:PID" pair from a USB
// descriptor string, or returns "" when none is present.
func ParseVIDPID(descriptor string) string {
	s := strings.ToUpper(strings.TrimSpace(descriptor))
	for _, form := range vidpidForms {
		if m := form.FindStringSubmatch(s); m != nil {
			return m[1] + ":" + m[2]
		}
	}
	return ""
}

// IsPathIgnored reports whether devicePath matches an entry of ignorePaths,
// either verbatim or after path normalization. Normalization lowercases so
// Windows COM port spellings compare equal.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	canon := canonicalPath(devicePath)
	for _, ignore := range ignorePaths {
		if ignore == "" {
			continue
		}
		if devicePath == ignore || canon == canonicalPath(ignore) {
			return true
		}
	}
	return false
}

func canonicalPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
