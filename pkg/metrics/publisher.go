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

// Package metrics publishes savings datapoints to CloudWatch.
package metrics

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/darindeters/DynamicEC2Scaler/pkg/aws"
)

// Publisher sends metric datapoints in API-sized batches. Publishing is
// best effort: failures are logged, never surfaced to the caller.
type Publisher struct {
	client    aws.MetricsClient
	namespace string
	log       logr.Logger
}

// NewPublisher builds a Publisher. An empty namespace disables
// publishing.
func NewPublisher(client aws.MetricsClient, namespace string, log logr.Logger) *Publisher {
	return &Publisher{
		client:    client,
		namespace: namespace,
		log:       log.WithName("metrics"),
	}
}

// Publish sends the datapoints in batches of at most MaxMetricsPerCall.
// A failed batch is logged and the remaining batches are still sent.
func (p *Publisher) Publish(ctx context.Context, data []aws.MetricDatum) {
	if p.namespace == "" {
		p.log.Info("savings metric namespace not configured, skipping CloudWatch metrics")
		return
	}
	if len(data) == 0 {
		return
	}

	for start := 0; start < len(data); start += aws.MaxMetricsPerCall {
		end := start + aws.MaxMetricsPerCall
		if end > len(data) {
			end = len(data)
		}
		batch := data[start:end]
		if err := p.client.PutMetricData(ctx, p.namespace, batch); err != nil {
			p.log.Error(err, "failed to publish CloudWatch metrics batch",
				"namespace", p.namespace, "batchSize", len(batch))
		}
	}
}
