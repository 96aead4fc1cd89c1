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

// Package config loads the scaler's runtime settings from environment
// variables.
//
// Uses Viper for environment binding. Malformed numeric values fall back
// to their defaults instead of failing the invocation, and every numeric
// setting is clamped into its safe operating range after parsing. That
// keeps a bad deploy-time variable from disabling the whole scaler.
package config

import (
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Defaults for every tunable setting.
const (
	DefaultBatchSize            = 10
	DefaultMaxRetries           = 3
	DefaultBackoffSeconds       = 5.0
	DefaultDownsizeInstanceType = "t3.medium"
	DefaultMaxConcurrency       = 4
	DefaultScheduleTagKey       = "DynamicScalingSchedule"
	DefaultMetricNamespace      = "DynamicEC2Scaler/Savings"
	DefaultDiscountMode         = "manual"
	DefaultCoverageLookbackDays = 30
	DefaultOperatingSystem      = "Linux"
	DefaultPreInstalledSw       = "NA"
	DefaultLicenseModel         = "No License required"
	DefaultLogLevel             = "info"

	// MaxConcurrencyCeiling bounds the per-batch worker pool.
	MaxConcurrencyCeiling = 20
)

// Config holds every runtime setting of the scaler.
type Config struct {
	// BatchSize is how many instances are processed per batch.
	BatchSize int

	// MaxRetries is how many attempts each AWS mutation gets.
	MaxRetries int

	// BackoffSeconds is the linear backoff base between retry attempts.
	BackoffSeconds float64

	// FailFast aborts the run after the first batch that saw a failure.
	FailFast bool

	// DefaultDownsizeType is the instance type scaled-down instances get.
	DefaultDownsizeType string

	// MaxConcurrency is the per-batch worker pool size.
	MaxConcurrency int

	// ScheduleTagKey is the instance tag that names schedule membership.
	ScheduleTagKey string

	// ScaleUpCronExpression, when set, lets scale-down runs project the
	// savings until the next scheduled scale-up.
	ScaleUpCronExpression string

	// SavingsBucket is the S3 bucket for JSON savings reports. Empty
	// disables report writing.
	SavingsBucket string

	// MetricNamespace is the CloudWatch namespace for savings metrics.
	// Empty disables metric publishing.
	MetricNamespace string

	// DiscountMode selects the savings plan discount source, "manual" or
	// "coverage".
	DiscountMode string

	// DiscountPercent is the manual savings plan discount in [0, 100].
	DiscountPercent float64

	// CoverageLookbackDays is the Cost Explorer coverage window.
	CoverageLookbackDays int

	// Default pricing profile used when instance platform metadata
	// matches no known platform.
	DefaultOperatingSystem string
	DefaultPreInstalledSw  string
	DefaultLicenseModel    string

	// Region is the AWS region the scaler operates in.
	Region string

	// AssumeRoleARN, when set, is assumed for all AWS API calls.
	AssumeRoleARN string

	// LogLevel controls log verbosity: debug, info, warn, error.
	LogLevel string
}

// Load reads the configuration from environment variables, applying
// defaults and clamps.
func Load() *Config {
	v := viper.New()
	// an env var set to the empty string must count as set, so an empty
	// SAVINGS_METRIC_NAMESPACE can disable metrics on purpose
	v.AllowEmptyEnv(true)
	bindings := map[string]string{
		"batchSize":              "BATCH_SIZE",
		"maxRetries":             "MAX_RETRIES",
		"backoffSeconds":         "BACKOFF_SECS",
		"failFast":               "FAIL_FAST",
		"defaultDownsizeType":    "DEFAULT_DOWNSIZE_TYPE",
		"maxConcurrency":         "MAX_CONCURRENT_OPERATIONS",
		"scheduleTagKey":         "SCHEDULE_TAG_KEY",
		"scaleUpCronExpression":  "SCALE_UP_CRON_EXPRESSION",
		"savingsBucket":          "SAVINGS_BUCKET",
		"metricNamespace":        "SAVINGS_METRIC_NAMESPACE",
		"discountMode":           "SAVINGS_PLAN_DISCOUNT_MODE",
		"discountPercent":        "SAVINGS_PLAN_DISCOUNT_PERCENT",
		"coverageLookbackDays":   "SAVINGS_PLAN_COVERAGE_LOOKBACK_DAYS",
		"defaultOperatingSystem": "DEFAULT_PRICING_OPERATING_SYSTEM",
		"defaultPreInstalledSw":  "DEFAULT_PRICING_PREINSTALLED_SOFTWARE",
		"defaultLicenseModel":    "DEFAULT_PRICING_LICENSE_MODEL",
		"region":                 "AWS_REGION",
		"assumeRoleARN":          "ASSUME_ROLE_ARN",
		"logLevel":               "LOG_LEVEL",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{
		BatchSize:              intSetting(v, "batchSize", DefaultBatchSize, 1, 0),
		MaxRetries:             intSetting(v, "maxRetries", DefaultMaxRetries, 1, 0),
		BackoffSeconds:         floatSetting(v, "backoffSeconds", DefaultBackoffSeconds, 0),
		FailFast:               boolSetting(v, "failFast", false),
		DefaultDownsizeType:    stringSetting(v, "defaultDownsizeType", DefaultDownsizeInstanceType),
		MaxConcurrency:         intSetting(v, "maxConcurrency", DefaultMaxConcurrency, 1, MaxConcurrencyCeiling),
		ScheduleTagKey:         stringSetting(v, "scheduleTagKey", DefaultScheduleTagKey),
		ScaleUpCronExpression:  strings.TrimSpace(v.GetString("scaleUpCronExpression")),
		SavingsBucket:          strings.TrimSpace(v.GetString("savingsBucket")),
		MetricNamespace:        metricNamespace(v),
		DiscountMode:           strings.ToLower(stringSetting(v, "discountMode", DefaultDiscountMode)),
		DiscountPercent:        rawFloatSetting(v, "discountPercent", 0),
		CoverageLookbackDays:   intSetting(v, "coverageLookbackDays", DefaultCoverageLookbackDays, 1, 90),
		DefaultOperatingSystem: stringSetting(v, "defaultOperatingSystem", DefaultOperatingSystem),
		DefaultPreInstalledSw:  stringSetting(v, "defaultPreInstalledSw", DefaultPreInstalledSw),
		DefaultLicenseModel:    stringSetting(v, "defaultLicenseModel", DefaultLicenseModel),
		Region:                 strings.TrimSpace(v.GetString("region")),
		AssumeRoleARN:          strings.TrimSpace(v.GetString("assumeRoleARN")),
		LogLevel:               stringSetting(v, "logLevel", DefaultLogLevel),
	}
	return cfg
}

// metricNamespace distinguishes "unset" (use the default namespace) from
// "set to empty" (metrics disabled on purpose).
func metricNamespace(v *viper.Viper) string {
	if !v.IsSet("metricNamespace") {
		return DefaultMetricNamespace
	}
	return strings.TrimSpace(v.GetString("metricNamespace"))
}

// intSetting parses an integer setting, falling back to the default on a
// malformed value and clamping into [minimum, maximum]. A maximum of 0
// means unbounded.
func intSetting(v *viper.Viper, key string, fallback, minimum, maximum int) int {
	value := fallback
	if raw := strings.TrimSpace(v.GetString(key)); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			value = parsed
		}
	}
	if value < minimum {
		value = minimum
	}
	if maximum > 0 && value > maximum {
		value = maximum
	}
	return value
}

// floatSetting parses a float setting with a fallback and a lower bound.
func floatSetting(v *viper.Viper, key string, fallback, minimum float64) float64 {
	value := rawFloatSetting(v, key, fallback)
	if value < minimum {
		value = minimum
	}
	return value
}

// rawFloatSetting parses a float setting without clamping. Settings whose
// out-of-range values must be surfaced as errors downstream (the manual
// discount percent) use this so the raw value survives.
func rawFloatSetting(v *viper.Viper, key string, fallback float64) float64 {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func boolSetting(v *viper.Viper, key string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(v.GetString(key)))
	switch raw {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return fallback
	}
}

func stringSetting(v *viper.Viper, key, fallback string) string {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback
	}
	return raw
}
