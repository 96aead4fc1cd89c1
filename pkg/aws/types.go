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

// Package aws provides abstractions for interacting with AWS services.
//
// This file contains pure data structure definitions with no logic beyond
// tag lookup helpers. The types are exercised through the mock and real
// client implementations.

package aws

import (
	"strings"
	"time"
)

// Durable tag keys written and read on managed instances. Tags are the only
// cross-invocation state the scaler keeps; there is no database.
const (
	// ScalingEnabledTag opts an instance into dynamic scaling. Only
	// instances carrying this tag with value "true" are enumerated.
	ScalingEnabledTag = "DynamicInstanceScaling"

	// PreferredTypeTag records the instance type before the first
	// downsize so a later scale-up can restore it. Once set it is never
	// overwritten by subsequent scale-downs.
	PreferredTypeTag = "PreferredInstanceType"

	// LastScaleDownTimestampTag is the UTC timestamp of the most recent
	// scale-down, the basis for actual-savings reconciliation.
	LastScaleDownTimestampTag = "DynamicScalingLastScaleDownTimestamp"

	// LastScaleDownHourlyTag is the estimated hourly savings recorded at
	// scale-down time.
	LastScaleDownHourlyTag = "DynamicScalingLastScaleDownHourlySavings"

	// LastScaleUpTimestampTag is the UTC timestamp of the most recent
	// scale-up. It guards against double counting actual savings when a
	// scale-up invocation repeats against the same off-hours window.
	LastScaleUpTimestampTag = "DynamicScalingLastScaleUpTimestamp"
)

// Instance states the scaler cares about.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// Instance is the descriptor for one managed EC2 instance, sourced once per
// invocation from DescribeInstances and mutated only through tag writes.
type Instance struct {
	// InstanceID is the EC2 instance ID (e.g., "i-abc123def456")
	InstanceID string

	// InstanceType is the current instance type (e.g., "m5.xlarge")
	InstanceType string

	// State is the lifecycle state ("running", "stopped", ...)
	State string

	// PlatformDetails is the most specific platform description AWS
	// reports (e.g., "Windows with SQL Server Enterprise")
	PlatformDetails string

	// Platform is the coarse platform value ("windows" or empty for Linux)
	Platform string

	// UsageOperation is the billing usage operation code description
	UsageOperation string

	// Tags are the instance tags at enumeration time
	Tags map[string]string
}

// TagValue returns the value for key in tags, falling back to a
// case-insensitive key match. Returns "" when the tag is absent.
func TagValue(tags map[string]string, key string) string {
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

// PricingFilter is one TERM_MATCH attribute filter for a catalog query.
type PricingFilter struct {
	Field string
	Value string
}

// Coverage is one Savings Plans coverage data point from Cost Explorer.
type Coverage struct {
	// Savings is the amount covered by Savings Plans in the period
	Savings float64

	// TotalCost is the on-demand equivalent cost not covered by plans
	TotalCost float64
}

// CoveragePage is one page of a Savings Plans coverage query.
type CoveragePage struct {
	Coverages []Coverage

	// NextToken continues pagination; empty on the last page
	NextToken string
}

// MetricDimension is a name/value pair qualifying a metric datum.
type MetricDimension struct {
	Name  string
	Value string
}

// MetricDatum is one point metric published to the metrics backend.
type MetricDatum struct {
	Name       string
	Dimensions []MetricDimension
	Timestamp  time.Time
	Value      float64
}
