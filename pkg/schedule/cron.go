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

// Package schedule implements the restricted cron dialect used to time
// scale-up/scale-down runs and to match instances to named schedules.
//
// Only a daily or weekly-recurring time of day is supported: minute and
// hour must be fixed values, day-of-month, month, and year must be
// wildcards, and day-of-week may restrict the weekdays.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultName is the schedule assumed when an invocation or an instance
// names none.
const DefaultName = "default"

// AllToken is the reserved schedule token that matches every schedule.
const AllToken = "all"

// ErrNoOccurrence is returned when no occurrence exists within the scan
// horizon, which signals a malformed or absurdly restrictive expression.
var ErrNoOccurrence = errors.New("no occurrence within scan horizon")

// scanHorizonDays bounds the forward search in NextOccurrence.
const scanHorizonDays = 14

const cronFieldCount = 6

var weekdayNames = map[string]time.Weekday{
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
	"SUN": time.Sunday,
}

// Expression is a parsed restricted cron expression.
type Expression struct {
	Minute int
	Hour   int

	// Weekdays restricts occurrences to the listed weekdays. Nil means
	// unrestricted.
	Weekdays map[time.Weekday]bool
}

// Parse parses a 6-field cron expression (minute hour day-of-month month
// day-of-week year), optionally wrapped in "cron(...)".
func Parse(expr string) (Expression, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return Expression{}, errors.New("cron expression is empty")
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "cron(") && strings.HasSuffix(trimmed, ")") {
		trimmed = strings.TrimSpace(trimmed[5 : len(trimmed)-1])
	}

	fields := strings.Fields(trimmed)
	if len(fields) != cronFieldCount {
		return Expression{}, fmt.Errorf("cron expression must have %d fields: %q", cronFieldCount, expr)
	}

	minute, err := parseFixedField(fields[0], "minute", 0, 59)
	if err != nil {
		return Expression{}, err
	}
	hour, err := parseFixedField(fields[1], "hour", 0, 23)
	if err != nil {
		return Expression{}, err
	}
	if fields[2] != "*" && fields[2] != "?" {
		return Expression{}, errors.New("day-of-month field must be '*' or '?' for supported cron expressions")
	}
	if fields[3] != "*" {
		return Expression{}, errors.New("month field must be '*' for supported cron expressions")
	}
	if fields[5] != "*" {
		return Expression{}, errors.New("year field must be '*' for supported cron expressions")
	}

	weekdays, err := parseWeekdayField(fields[4])
	if err != nil {
		return Expression{}, err
	}

	return Expression{Minute: minute, Hour: hour, Weekdays: weekdays}, nil
}

// NextOccurrence returns the first instant described by expr that is
// strictly after ref, scanning up to 14 calendar days forward.
func NextOccurrence(expr string, ref time.Time) (time.Time, error) {
	parsed, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}

	for offset := 0; offset < scanHorizonDays; offset++ {
		year, month, day := ref.AddDate(0, 0, offset).Date()
		candidate := time.Date(year, month, day, parsed.Hour, parsed.Minute, 0, 0, ref.Location())
		if !candidate.After(ref) {
			continue
		}
		if parsed.Weekdays != nil && !parsed.Weekdays[candidate.Weekday()] {
			continue
		}
		return candidate, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrNoOccurrence, expr)
}

// Normalize canonicalizes a requested schedule name: trimmed, lowercased,
// empty mapped to DefaultName.
func Normalize(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return DefaultName
	}
	return normalized
}

// Matches reports whether an instance with the given tags belongs to the
// requested schedule. The reserved name "all" matches everything. An
// instance without the schedule tag (or with an empty value) belongs only
// to the default schedule. The tag value is a comma-separated token list;
// the reserved token "all" opts the instance into every schedule.
func Matches(tags map[string]string, tagKey, requested string) bool {
	if requested == AllToken {
		return true
	}

	raw := tagValue(tags, tagKey)
	tokens := splitTokens(raw)
	if len(tokens) == 0 {
		return requested == DefaultName
	}
	for _, token := range tokens {
		if token == AllToken || token == requested {
			return true
		}
	}
	return false
}

// tagValue looks up a tag by key, case-insensitively.
func tagValue(tags map[string]string, key string) string {
	if v, ok := tags[key]; ok {
		return v
	}
	for k, v := range tags {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func splitTokens(raw string) []string {
	if raw == "" {
		return nil
	}
	var tokens []string
	for _, token := range strings.Split(raw, ",") {
		cleaned := strings.ToLower(strings.TrimSpace(token))
		if cleaned != "" {
			tokens = append(tokens, cleaned)
		}
	}
	return tokens
}

func parseFixedField(value, name string, minimum, maximum int) (int, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "*" || cleaned == "?" {
		return 0, fmt.Errorf("%s field must be a fixed numeric value in cron expression", name)
	}
	numeric, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%s field must be an integer in cron expression: %q", name, value)
	}
	if numeric < minimum || numeric > maximum {
		return 0, fmt.Errorf("%s field value %d is out of the allowed range %d-%d", name, numeric, minimum, maximum)
	}
	return numeric, nil
}

// parseWeekdayField parses the day-of-week field. "*" and "?" mean
// unrestricted (nil set). Otherwise the field is a comma-separated list of
// single values or ranges; a range whose start is after its end wraps
// around the week (FRI-MON covers FRI, SAT, SUN, MON).
func parseWeekdayField(field string) (map[time.Weekday]bool, error) {
	normalized := strings.ToUpper(strings.TrimSpace(field))
	if normalized == "*" || normalized == "?" {
		return nil, nil
	}

	allowed := make(map[time.Weekday]bool)
	for _, segment := range strings.Split(normalized, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		if start, end, ok := strings.Cut(segment, "-"); ok {
			from, err := parseWeekdayToken(start)
			if err != nil {
				return nil, err
			}
			to, err := parseWeekdayToken(end)
			if err != nil {
				return nil, err
			}
			for day := from; ; day = (day + 1) % 7 {
				allowed[day] = true
				if day == to {
					break
				}
			}
			continue
		}
		day, err := parseWeekdayToken(segment)
		if err != nil {
			return nil, err
		}
		allowed[day] = true
	}
	if len(allowed) == 0 {
		return nil, errors.New("day-of-week field has no usable tokens")
	}
	return allowed, nil
}

// parseWeekdayToken accepts three-letter names (MON..SUN) and numbers 0-7,
// where both 0 and 7 mean Sunday.
func parseWeekdayToken(token string) (time.Weekday, error) {
	cleaned := strings.ToUpper(strings.TrimSpace(token))
	if cleaned == "" {
		return 0, errors.New("empty day-of-week token in cron expression")
	}
	if day, ok := weekdayNames[cleaned]; ok {
		return day, nil
	}
	numeric, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("unsupported day-of-week token: %q", token)
	}
	switch {
	case numeric == 0 || numeric == 7:
		return time.Sunday, nil
	case numeric >= 1 && numeric <= 6:
		return time.Weekday(numeric), nil
	default:
		return 0, fmt.Errorf("day-of-week value out of range: %q", token)
	}
}
