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

package aws

import (
	"context"
	"time"
)

// EC2Client provides the EC2 operations the lifecycle controller needs.
// All blocking operations take a context. Waiters block until the provider
// confirms the requested state or the context is cancelled.
type EC2Client interface {
	// DescribeScalableInstances returns every instance opted into dynamic
	// scaling (ScalingEnabledTag=true) in running or stopped state,
	// paginating through the full fleet.
	DescribeScalableInstances(ctx context.Context) ([]Instance, error)

	// DescribeInstanceType returns the current instance type of one instance.
	DescribeInstanceType(ctx context.Context, instanceID string) (string, error)

	// StopInstance requests a stop. It does not wait.
	StopInstance(ctx context.Context, instanceID string) error

	// StartInstance requests a start. It does not wait.
	StartInstance(ctx context.Context, instanceID string) error

	// WaitUntilStopped blocks until the instance reports stopped state.
	WaitUntilStopped(ctx context.Context, instanceID string) error

	// WaitUntilRunning blocks until the instance reports running state.
	WaitUntilRunning(ctx context.Context, instanceID string) error

	// ModifyInstanceType requests an instance-type change. The instance
	// must be stopped. Confirmation is polled separately via
	// DescribeInstanceType.
	ModifyInstanceType(ctx context.Context, instanceID, instanceType string) error

	// CreateTags writes the given tags on the instance. Multi-tag writes
	// are not atomic; callers must not assume they are.
	CreateTags(ctx context.Context, instanceID string, tags map[string]string) error
}

// PricingClient provides access to the AWS price catalog. Pricing data is
// public and not account-specific.
type PricingClient interface {
	// GetProducts queries the EC2 price catalog with the given TERM_MATCH
	// filters and returns up to maxResults raw price-list JSON documents.
	GetProducts(ctx context.Context, filters []PricingFilter, maxResults int32) ([]string, error)
}

// CostExplorerClient provides the historical coverage query used by the
// coverage discount mode.
type CostExplorerClient interface {
	// SavingsPlansCoverage returns one page of daily Savings Plans
	// coverage for [start, end). Pass the previous page's NextToken to
	// continue; pass "" for the first page.
	SavingsPlansCoverage(ctx context.Context, start, end time.Time, nextToken string) (CoveragePage, error)
}

// StorageClient persists run reports to durable object storage.
type StorageClient interface {
	PutReport(ctx context.Context, bucket, key string, body []byte) error
}

// MetricsClient publishes point metrics to the metrics backend.
// Implementations accept at most MaxMetricsPerCall data points per call;
// callers batch accordingly.
type MetricsClient interface {
	PutMetricData(ctx context.Context, namespace string, data []MetricDatum) error
}

// MaxMetricsPerCall is the CloudWatch PutMetricData per-call item limit.
const MaxMetricsPerCall = 20
