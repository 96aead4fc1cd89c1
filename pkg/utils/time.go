// Copyright 2025 DynamicEC2Scaler Contributors
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

// Package utils holds small shared helpers.
package utils

import (
	"strings"
	"time"
)

// timestampLayout is the wire format for durable timestamps: UTC, second
// precision, trailing Z. All tags and report fields use this format.
const timestampLayout = "2006-01-02T15:04:05Z"

// FormatUTC renders a timestamp in the durable wire format.
func FormatUTC(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timestampLayout)
}

// ParseUTC parses a durable timestamp. It accepts the canonical trailing-Z
// form as well as explicit numeric offsets, normalizing to UTC with second
// precision. Returns the zero time and false when the value is empty or
// malformed.
func ParseUTC(value string) (time.Time, bool) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{timestampLayout, time.RFC3339} {
		if parsed, err := time.Parse(layout, cleaned); err == nil {
			return parsed.UTC().Truncate(time.Second), true
		}
	}
	return time.Time{}, false
}
