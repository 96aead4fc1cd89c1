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

package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	local := time.Date(2025, 6, 5, 13, 0, 0, 123456789, est)

	assert.Equal(t, "2025-06-05T18:00:00Z", FormatUTC(local))
}

func TestParseUTC(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Time
		ok    bool
	}{
		{
			name:  "canonical form",
			value: "2025-06-05T18:00:00Z",
			want:  time.Date(2025, 6, 5, 18, 0, 0, 0, time.UTC),
			ok:    true,
		},
		{
			name:  "offset form normalized to UTC",
			value: "2025-06-05T13:00:00-05:00",
			want:  time.Date(2025, 6, 5, 18, 0, 0, 0, time.UTC),
			ok:    true,
		},
		{
			name:  "surrounding whitespace",
			value: "  2025-06-05T18:00:00Z  ",
			want:  time.Date(2025, 6, 5, 18, 0, 0, 0, time.UTC),
			ok:    true,
		},
		{name: "empty", value: ""},
		{name: "blank", value: "   "},
		{name: "malformed", value: "yesterday"},
		{name: "date only", value: "2025-06-05"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseUTC(tc.value)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
			}
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	original := time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)
	parsed, ok := ParseUTC(FormatUTC(original))
	require.True(t, ok)
	assert.True(t, original.Equal(parsed))
}
