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
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// RealMetricsClient is the production MetricsClient backed by CloudWatch.
type RealMetricsClient struct {
	client *cloudwatch.Client
}

// NewRealMetricsClient creates a CloudWatch metrics client.
func NewRealMetricsClient(cfg aws.Config) *RealMetricsClient {
	return &RealMetricsClient{client: cloudwatch.NewFromConfig(cfg)}
}

// PutMetricData publishes one batch of metric data points. Callers must
// respect the MaxMetricsPerCall limit.
func (c *RealMetricsClient) PutMetricData(ctx context.Context, namespace string, data []MetricDatum) error {
	metricData := make([]cwtypes.MetricDatum, 0, len(data))
	for _, d := range data {
		dims := make([]cwtypes.Dimension, 0, len(d.Dimensions))
		for _, dim := range d.Dimensions {
			dims = append(dims, cwtypes.Dimension{
				Name:  aws.String(dim.Name),
				Value: aws.String(dim.Value),
			})
		}
		metricData = append(metricData, cwtypes.MetricDatum{
			MetricName: aws.String(d.Name),
			Dimensions: dims,
			Timestamp:  aws.Time(d.Timestamp),
			Value:      aws.Float64(d.Value),
			Unit:       cwtypes.StandardUnitNone,
		})
	}

	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(namespace),
		MetricData: metricData,
	})
	if err != nil {
		return fmt.Errorf("failed to publish metrics to %s: %w", namespace, err)
	}
	return nil
}
