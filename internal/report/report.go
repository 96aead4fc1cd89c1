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

// Package report assembles run summaries, persists them as JSON objects
// in S3, and publishes the matching CloudWatch metrics. Everything here
// is best effort: a failed report write or metric publish is logged and
// never fails the scaling run that produced it.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/go-logr/logr"

	"github.com/darindeters/DynamicEC2Scaler/pkg/aws"
	"github.com/darindeters/DynamicEC2Scaler/pkg/metrics"
	"github.com/darindeters/DynamicEC2Scaler/pkg/schedule"
	"github.com/darindeters/DynamicEC2Scaler/pkg/utils"
)

// S3 key prefixes for the two report families.
const (
	savingsPrefix       = "savings"
	actualSavingsPrefix = "actual-savings"
)

// SavingsRecord captures the estimated savings of one scale-down.
type SavingsRecord struct {
	InstanceID            string  `json:"instance_id"`
	PreviousType          string  `json:"previous_type"`
	DownsizedType         string  `json:"downsized_type"`
	PricingOS             string  `json:"pricing_operating_system"`
	PricingPreInstalledSw string  `json:"pricing_preinstalled_software"`
	PricingLicenseModel   string  `json:"pricing_license_model"`
	PricingProfileSource  string  `json:"pricing_profile_source"`
	HourlySavings         float64 `json:"hourly_savings"`
	ScaleDownTimestamp    string  `json:"scale_down_timestamp"`
}

// ActualSavingsRecord captures the measured savings of one completed
// off-hours window, reconstructed from instance tag metadata.
type ActualSavingsRecord struct {
	InstanceID          string  `json:"instance_id"`
	OffHoursType        string  `json:"off_hours_type"`
	RestoredType        string  `json:"restored_type"`
	ScaleDownTimestamp  string  `json:"scale_down_timestamp"`
	ScaleUpTimestamp    string  `json:"scale_up_timestamp"`
	DowntimeHours       float64 `json:"downtime_hours"`
	HourlySavings       float64 `json:"hourly_savings"`
	ActualSavings       float64 `json:"actual_savings"`
	ActualSavingsSource string  `json:"actual_savings_source"`
}

// SavingsSummary is the scale-down report body.
type SavingsSummary struct {
	Timestamp              string          `json:"timestamp"`
	Region                 string          `json:"region"`
	DiscountPercent        float64         `json:"savings_plan_discount_percent"`
	DiscountSource         string          `json:"savings_plan_discount_source"`
	TotalHourlySavings     float64         `json:"total_hourly_savings"`
	Instances              []SavingsRecord `json:"instances"`
	ProjectionSource       string          `json:"projection_source,omitempty"`
	ProjectedScaleUpTime   string          `json:"projected_scale_up_time_utc,omitempty"`
	ProjectedDurationHours *float64        `json:"projected_off_hours_duration_hours,omitempty"`
	ProjectedTotalSavings  *float64        `json:"projected_total_savings,omitempty"`
	ProjectionError        string          `json:"projection_error,omitempty"`
	ZeroSavings            bool            `json:"zero_savings,omitempty"`
	ZeroSavingsReason      string          `json:"zero_savings_reason,omitempty"`
	ZeroSavingsFlags       []string        `json:"zero_savings_flags,omitempty"`
}

// ActualSavingsSummary is the scale-up report body.
type ActualSavingsSummary struct {
	Timestamp          string                `json:"timestamp"`
	Region             string                `json:"region"`
	CalculationSource  string                `json:"calculation_source"`
	TotalActualSavings float64               `json:"total_actual_savings"`
	TotalDowntimeHours float64               `json:"total_actual_downtime_hours"`
	TotalHourlyBasis   float64               `json:"total_hourly_savings_basis"`
	Instances          []ActualSavingsRecord `json:"instances"`
	ZeroSavings        bool                  `json:"zero_savings,omitempty"`
	ZeroSavingsReason  string                `json:"zero_savings_reason,omitempty"`
	ZeroSavingsFlags   []string              `json:"zero_savings_flags,omitempty"`
}

// Recorder writes run summaries to S3 and publishes their metrics.
type Recorder struct {
	Storage   aws.StorageClient
	Publisher *metrics.Publisher
	Bucket    string
	Region    string

	// ScaleUpCron, when set, is the schedule used to project how long
	// scaled-down instances stay downsized.
	ScaleUpCron string

	Log logr.Logger
}

// RecordSavings assembles and persists the scale-down summary. The
// discount factor and source come from the savings plan estimator.
func (r *Recorder) RecordSavings(ctx context.Context, records []SavingsRecord, runTime time.Time, discountFactor float64, discountSource string) {
	runTime = runTime.UTC().Truncate(time.Second)
	total := 0.0
	for _, record := range records {
		total += record.HourlySavings
	}
	total = round4(total)

	summary := SavingsSummary{
		Timestamp:          utils.FormatUTC(runTime),
		Region:             r.Region,
		DiscountPercent:    round4((1 - discountFactor) * 100),
		DiscountSource:     discountSource,
		TotalHourlySavings: total,
		Instances:          records,
	}

	if err := r.projectSavings(&summary, total, runTime); err != nil {
		r.Log.Info("unable to derive projected savings window", "error", err.Error())
		summary.ProjectionError = err.Error()
	}

	if len(records) == 0 {
		summary.ZeroSavings = true
		summary.ZeroSavingsReason = "no_savings_records_generated"
		summary.ZeroSavingsFlags = []string{"no_savings_records"}
	}

	r.Log.Info("SavingsRunSummary",
		"region", summary.Region,
		"totalHourlySavings", summary.TotalHourlySavings,
		"instanceCount", len(records),
		"discountPercent", summary.DiscountPercent,
		"discountSource", summary.DiscountSource)

	r.writeReport(ctx, savingsPrefix, summary.Timestamp, runTime, summary)

	if len(records) > 0 {
		r.Publisher.Publish(ctx, savingsMetrics(summary, runTime))
	}
}

// RecordActualSavings assembles and persists the scale-up summary.
func (r *Recorder) RecordActualSavings(ctx context.Context, records []ActualSavingsRecord, runTime time.Time) {
	runTime = runTime.UTC().Truncate(time.Second)
	var totalSavings, totalDowntime, totalHourly float64
	for _, record := range records {
		totalSavings += record.ActualSavings
		totalDowntime += record.DowntimeHours
		totalHourly += record.HourlySavings
	}

	summary := ActualSavingsSummary{
		Timestamp:          utils.FormatUTC(runTime),
		Region:             r.Region,
		CalculationSource:  "instance_tag_metadata",
		TotalActualSavings: round4(totalSavings),
		TotalDowntimeHours: round4(totalDowntime),
		TotalHourlyBasis:   round4(totalHourly),
		Instances:          records,
	}

	if len(records) == 0 {
		summary.ZeroSavings = true
		summary.ZeroSavingsReason = "no_actual_savings_records"
		summary.ZeroSavingsFlags = []string{"no_actual_records"}
	}

	r.Log.Info("ActualSavingsSummary",
		"region", summary.Region,
		"totalActualSavings", summary.TotalActualSavings,
		"totalDowntimeHours", summary.TotalDowntimeHours,
		"instanceCount", len(records))

	r.writeReport(ctx, actualSavingsPrefix, summary.Timestamp, runTime, summary)

	if len(records) > 0 {
		r.Publisher.Publish(ctx, actualSavingsMetrics(summary, runTime))
	}
}

// projectSavings extends the summary with the projected savings until
// the next scheduled scale-up.
func (r *Recorder) projectSavings(summary *SavingsSummary, totalHourly float64, runTime time.Time) error {
	if r.ScaleUpCron == "" {
		return fmt.Errorf("scale up cron expression is not configured")
	}
	nextScaleUp, err := schedule.NextOccurrence(r.ScaleUpCron, runTime)
	if err != nil {
		return err
	}
	durationHours := nextScaleUp.Sub(runTime).Hours()
	if durationHours < 0 {
		durationHours = 0
	}
	durationHours = round4(durationHours)
	projectedTotal := round4(totalHourly * durationHours)

	summary.ProjectionSource = "scale_up_schedule"
	summary.ProjectedScaleUpTime = utils.FormatUTC(nextScaleUp)
	summary.ProjectedDurationHours = &durationHours
	summary.ProjectedTotalSavings = &projectedTotal
	return nil
}

// writeReport persists the summary under <prefix>/<date>/<timestamp>.json.
func (r *Recorder) writeReport(ctx context.Context, prefix, timestamp string, runTime time.Time, summary any) {
	if r.Bucket == "" {
		r.Log.Info("savings bucket is not configured, skipping report write", "prefix", prefix)
		return
	}

	key := fmt.Sprintf("%s/%s/%s.json", prefix, runTime.Format("2006-01-02"), timestamp)
	body, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		r.Log.Error(err, "failed to encode savings report", "prefix", prefix)
		return
	}

	r.Log.Info("writing savings report", "bucket", r.Bucket, "key", key)
	if err := r.Storage.PutReport(ctx, r.Bucket, key, body); err != nil {
		r.Log.Error(err, "failed to write savings report to S3", "bucket", r.Bucket, "key", key)
	}
}

func savingsMetrics(summary SavingsSummary, runTime time.Time) []aws.MetricDatum {
	regionDim := []aws.MetricDimension{{Name: "Region", Value: summary.Region}}
	data := []aws.MetricDatum{{
		Name:       "TotalHourlySavings",
		Dimensions: regionDim,
		Timestamp:  runTime,
		Value:      summary.TotalHourlySavings,
	}}

	if summary.ProjectedTotalSavings != nil {
		data = append(data, aws.MetricDatum{
			Name:       "TotalProjectedOffHoursSavings",
			Dimensions: regionDim,
			Timestamp:  runTime,
			Value:      *summary.ProjectedTotalSavings,
		})
	}
	if summary.ProjectedDurationHours != nil {
		data = append(data, aws.MetricDatum{
			Name:       "ProjectedOffHoursDurationHours",
			Dimensions: regionDim,
			Timestamp:  runTime,
			Value:      *summary.ProjectedDurationHours,
		})
	}

	for _, record := range summary.Instances {
		data = append(data, aws.MetricDatum{
			Name: "InstanceHourlySavings",
			Dimensions: []aws.MetricDimension{
				{Name: "Region", Value: summary.Region},
				{Name: "InstanceId", Value: record.InstanceID},
			},
			Timestamp: runTime,
			Value:     record.HourlySavings,
		})
	}
	return data
}

func actualSavingsMetrics(summary ActualSavingsSummary, runTime time.Time) []aws.MetricDatum {
	regionDim := []aws.MetricDimension{{Name: "Region", Value: summary.Region}}
	data := []aws.MetricDatum{
		{
			Name:       "TotalActualSavings",
			Dimensions: regionDim,
			Timestamp:  runTime,
			Value:      summary.TotalActualSavings,
		},
		{
			Name:       "TotalActualDowntimeHours",
			Dimensions: regionDim,
			Timestamp:  runTime,
			Value:      summary.TotalDowntimeHours,
		},
		{
			Name:       "TotalActualHourlySavingsBasis",
			Dimensions: regionDim,
			Timestamp:  runTime,
			Value:      summary.TotalHourlyBasis,
		},
	}

	for _, record := range summary.Instances {
		instanceDims := []aws.MetricDimension{
			{Name: "Region", Value: summary.Region},
			{Name: "InstanceId", Value: record.InstanceID},
		}
		data = append(data,
			aws.MetricDatum{
				Name:       "InstanceActualSavings",
				Dimensions: instanceDims,
				Timestamp:  runTime,
				Value:      record.ActualSavings,
			},
			aws.MetricDatum{
				Name:       "InstanceDowntimeHours",
				Dimensions: instanceDims,
				Timestamp:  runTime,
				Value:      record.DowntimeHours,
			},
		)
	}
	return data
}

// round4 rounds to four decimal places, matching the precision of the
// persisted reports.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Round4 is the shared rounding used for report values.
func Round4(v float64) float64 {
	return round4(v)
}
