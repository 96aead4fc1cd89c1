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

package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darindeters/DynamicEC2Scaler/pkg/aws"
)

func makeData(n int) []aws.MetricDatum {
	data := make([]aws.MetricDatum, n)
	for i := range data {
		data[i] = aws.MetricDatum{Name: fmt.Sprintf("Metric%d", i), Value: float64(i)}
	}
	return data
}

func TestPublishBatches(t *testing.T) {
	mock := &aws.MockMetricsClient{}
	pub := NewPublisher(mock, "DynamicEC2Scaler/Savings", logr.Discard())

	pub.Publish(context.Background(), makeData(45))

	require.Len(t, mock.Batches, 3)
	assert.Len(t, mock.Batches[0], 20)
	assert.Len(t, mock.Batches[1], 20)
	assert.Len(t, mock.Batches[2], 5)
	for _, ns := range mock.Namespaces {
		assert.Equal(t, "DynamicEC2Scaler/Savings", ns)
	}
}

func TestPublishEmptyNamespaceSkips(t *testing.T) {
	mock := &aws.MockMetricsClient{}
	pub := NewPublisher(mock, "", logr.Discard())

	pub.Publish(context.Background(), makeData(3))

	assert.Empty(t, mock.Batches)
}

func TestPublishNoData(t *testing.T) {
	mock := &aws.MockMetricsClient{}
	pub := NewPublisher(mock, "DynamicEC2Scaler/Savings", logr.Discard())

	pub.Publish(context.Background(), nil)

	assert.Empty(t, mock.Batches)
}

func TestPublishContinuesAfterBatchError(t *testing.T) {
	mock := &aws.MockMetricsClient{Err: errors.New("throttled")}
	pub := NewPublisher(mock, "DynamicEC2Scaler/Savings", logr.Discard())

	pub.Publish(context.Background(), makeData(25))

	// both batches were attempted despite the error
	assert.Len(t, mock.Batches, 2)
}
