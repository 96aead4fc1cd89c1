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

package report

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darindeters/DynamicEC2Scaler/pkg/aws"
	"github.com/darindeters/DynamicEC2Scaler/pkg/metrics"
)

func newTestRecorder(storage *aws.MockStorageClient, cw *aws.MockMetricsClient, cron string) *Recorder {
	return &Recorder{
		Storage:     storage,
		Publisher:   metrics.NewPublisher(cw, "DynamicEC2Scaler/Savings", logr.Discard()),
		Bucket:      "savings-reports",
		Region:      "us-east-1",
		ScaleUpCron: cron,
		Log:         logr.Discard(),
	}
}

func TestRecordSavings(t *testing.T) {
	storage := aws.NewMockStorageClient()
	cw := &aws.MockMetricsClient{}
	rec := newTestRecorder(storage, cw, "0 8 * * MON-FRI *")

	// 2025-06-05 is a Thursday, so the next 08:00 scale-up is Friday.
	runTime := time.Date(2025, 6, 5, 18, 0, 0, 0, time.UTC)
	records := []SavingsRecord{
		{InstanceID: "i-1", PreviousType: "m5.large", DownsizedType: "t3.medium", HourlySavings: 0.05},
		{InstanceID: "i-2", PreviousType: "m5.xlarge", DownsizedType: "t3.medium", HourlySavings: 0.15},
	}

	rec.RecordSavings(context.Background(), records, runTime, 0.7, "manual")

	body, ok := storage.Objects["savings-reports/savings/2025-06-05/2025-06-05T18:00:00Z.json"]
	require.True(t, ok, "expected a savings report object, got %v", storage.Objects)

	var summary SavingsSummary
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, "2025-06-05T18:00:00Z", summary.Timestamp)
	assert.Equal(t, "us-east-1", summary.Region)
	assert.InDelta(t, 30.0, summary.DiscountPercent, 1e-9)
	assert.Equal(t, "manual", summary.DiscountSource)
	assert.InDelta(t, 0.2, summary.TotalHourlySavings, 1e-9)
	assert.Len(t, summary.Instances, 2)
	assert.False(t, summary.ZeroSavings)

	assert.Equal(t, "scale_up_schedule", summary.ProjectionSource)
	assert.Equal(t, "2025-06-06T08:00:00Z", summary.ProjectedScaleUpTime)
	require.NotNil(t, summary.ProjectedDurationHours)
	assert.InDelta(t, 14.0, *summary.ProjectedDurationHours, 1e-9)
	require.NotNil(t, summary.ProjectedTotalSavings)
	assert.InDelta(t, 2.8, *summary.ProjectedTotalSavings, 1e-9)

	// total, projected total, projected duration, and two per-instance
	// datapoints fit in one batch
	require.Len(t, cw.Batches, 1)
	assert.Len(t, cw.Batches[0], 5)
	names := map[string]bool{}
	for _, datum := range cw.Batches[0] {
		names[datum.Name] = true
	}
	assert.True(t, names["TotalHourlySavings"])
	assert.True(t, names["TotalProjectedOffHoursSavings"])
	assert.True(t, names["ProjectedOffHoursDurationHours"])
	assert.True(t, names["InstanceHourlySavings"])
}

func TestRecordSavingsProjectionError(t *testing.T) {
	storage := aws.NewMockStorageClient()
	cw := &aws.MockMetricsClient{}
	rec := newTestRecorder(storage, cw, "")

	runTime := time.Date(2025, 6, 5, 18, 0, 0, 0, time.UTC)
	rec.RecordSavings(context.Background(), []SavingsRecord{
		{InstanceID: "i-1", HourlySavings: 0.1},
	}, runTime, 1.0, "manual")

	body := storage.Objects["savings-reports/savings/2025-06-05/2025-06-05T18:00:00Z.json"]
	var summary SavingsSummary
	require.NoError(t, json.Unmarshal(body, &summary))

	assert.NotEmpty(t, summary.ProjectionError)
	assert.Empty(t, summary.ProjectionSource)
	assert.Nil(t, summary.ProjectedTotalSavings)

	// metrics still publish, without the projection datapoints
	require.Len(t, cw.Batches, 1)
	assert.Len(t, cw.Batches[0], 2)
}

func TestRecordSavingsEmpty(t *testing.T) {
	storage := aws.NewMockStorageClient()
	cw := &aws.MockMetricsClient{}
	rec := newTestRecorder(storage, cw, "0 8 * * MON-FRI *")

	runTime := time.Date(2025, 6, 5, 18, 0, 0, 0, time.UTC)
	rec.RecordSavings(context.Background(), nil, runTime, 1.0, "manual")

	body := storage.Objects["savings-reports/savings/2025-06-05/2025-06-05T18:00:00Z.json"]
	var summary SavingsSummary
	require.NoError(t, json.Unmarshal(body, &summary))

	assert.True(t, summary.ZeroSavings)
	assert.Equal(t, "no_savings_records_generated", summary.ZeroSavingsReason)
	assert.Equal(t, []string{"no_savings_records"}, summary.ZeroSavingsFlags)
	assert.Zero(t, summary.TotalHourlySavings)

	// no metrics when there are no records
	assert.Empty(t, cw.Batches)
}

func TestRecordSavingsNoBucket(t *testing.T) {
	storage := aws.NewMockStorageClient()
	cw := &aws.MockMetricsClient{}
	rec := newTestRecorder(storage, cw, "0 8 * * MON-FRI *")
	rec.Bucket = ""

	runTime := time.Date(2025, 6, 5, 18, 0, 0, 0, time.UTC)
	rec.RecordSavings(context.Background(), []SavingsRecord{
		{InstanceID: "i-1", HourlySavings: 0.1},
	}, runTime, 1.0, "manual")

	assert.Empty(t, storage.Objects)
	// metrics publish regardless of the report write
	assert.NotEmpty(t, cw.Batches)
}

func TestRecordActualSavings(t *testing.T) {
	storage := aws.NewMockStorageClient()
	cw := &aws.MockMetricsClient{}
	rec := newTestRecorder(storage, cw, "")

	runTime := time.Date(2025, 6, 6, 8, 0, 0, 0, time.UTC)
	records := []ActualSavingsRecord{
		{
			InstanceID:          "i-1",
			OffHoursType:        "t3.medium",
			RestoredType:        "m5.large",
			ScaleDownTimestamp:  "2025-06-05T18:00:00Z",
			ScaleUpTimestamp:    "2025-06-06T08:00:00Z",
			DowntimeHours:       14.0,
			HourlySavings:       0.05,
			ActualSavings:       0.7,
			ActualSavingsSource: "tag:DynamicScalingLastScaleDownHourlySavings",
		},
	}

	rec.RecordActualSavings(context.Background(), records, runTime)

	body, ok := storage.Objects["savings-reports/actual-savings/2025-06-06/2025-06-06T08:00:00Z.json"]
	require.True(t, ok)

	var summary ActualSavingsSummary
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, "instance_tag_metadata", summary.CalculationSource)
	assert.InDelta(t, 0.7, summary.TotalActualSavings, 1e-9)
	assert.InDelta(t, 14.0, summary.TotalDowntimeHours, 1e-9)
	assert.InDelta(t, 0.05, summary.TotalHourlyBasis, 1e-9)
	assert.Len(t, summary.Instances, 1)

	// three totals plus two per-instance datapoints
	require.Len(t, cw.Batches, 1)
	assert.Len(t, cw.Batches[0], 5)
}

func TestRecordActualSavingsEmpty(t *testing.T) {
	storage := aws.NewMockStorageClient()
	cw := &aws.MockMetricsClient{}
	rec := newTestRecorder(storage, cw, "")

	runTime := time.Date(2025, 6, 6, 8, 0, 0, 0, time.UTC)
	rec.RecordActualSavings(context.Background(), nil, runTime)

	body := storage.Objects["savings-reports/actual-savings/2025-06-06/2025-06-06T08:00:00Z.json"]
	var summary ActualSavingsSummary
	require.NoError(t, json.Unmarshal(body, &summary))

	assert.True(t, summary.ZeroSavings)
	assert.Equal(t, "no_actual_savings_records", summary.ZeroSavingsReason)
	assert.Empty(t, cw.Batches)
}

func TestRound4(t *testing.T) {
	assert.Equal(t, 0.1235, Round4(0.12345678))
	assert.Equal(t, 14.0, Round4(14.00001))
}
