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

// Package scaler drives the per-instance downsizing lifecycle: tagging,
// stop/modify/start sequencing, savings estimation, and the concurrent
// batch orchestration around it.
package scaler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/darindeters/DynamicEC2Scaler/internal/report"
	"github.com/darindeters/DynamicEC2Scaler/pkg/aws"
	"github.com/darindeters/DynamicEC2Scaler/pkg/cost"
	"github.com/darindeters/DynamicEC2Scaler/pkg/pricing"
	"github.com/darindeters/DynamicEC2Scaler/pkg/utils"
)

// Action selects the direction of a scaling run.
type Action string

const (
	ActionScaleDown Action = "scaledown"
	ActionScaleUp   Action = "scaleup"
)

// ValidAction reports whether the action is one the scaler understands.
func ValidAction(a Action) bool {
	return a == ActionScaleDown || a == ActionScaleUp
}

// Result reports what one instance pass produced.
type Result struct {
	// Processed is true when the stop/modify/start sequence actually ran.
	Processed bool

	// Savings is set for scale-downs whose estimate succeeded.
	Savings *report.SavingsRecord

	// Actual is set for scale-ups whose downtime window could be
	// reconstructed from tag metadata.
	Actual *report.ActualSavingsRecord
}

// Controller performs the full lifecycle transition for one instance.
// It is safe to use one Controller per worker goroutine; the pricing
// resolver and discount estimator it shares are concurrency safe.
type Controller struct {
	EC2      aws.EC2Client
	Pricing  *pricing.Resolver
	Discount *cost.Estimator
	Retry    RetryConfig

	// DefaultProfile is the pricing profile used when instance platform
	// metadata matches no known platform.
	DefaultProfile pricing.Profile

	// DownsizeType is the instance type scale-downs converge to.
	DownsizeType string

	Log logr.Logger

	// Now is overridable for tests. Defaults to time.Now.
	Now func() time.Time

	// TypeConfirmTimeout bounds the post-modify type confirmation poll.
	// Zero means the 5 minute default.
	TypeConfirmTimeout time.Duration

	// TypePollInterval is the confirmation poll cadence. Zero means 5s.
	TypePollInterval time.Duration
}

const (
	defaultTypeConfirmTimeout = 5 * time.Minute
	defaultTypePollInterval   = 5 * time.Second
)

// Process runs one instance through the requested action. The
// runTimestamp is the shared run start, stamped into savings metadata so
// every instance of a run carries the same window start.
func (c *Controller) Process(ctx context.Context, inst aws.Instance, action Action, runTimestamp string) (Result, error) {
	log := c.Log.WithValues("instance", inst.InstanceID, "state", inst.State, "currentType", inst.InstanceType)
	log.Info("processing instance", "action", string(action))

	tags := make(map[string]string, len(inst.Tags))
	for k, v := range inst.Tags {
		tags[k] = v
	}

	var result Result
	var desiredType string
	var snapshotParams *actualSnapshotParams

	switch action {
	case ActionScaleDown:
		desiredType = c.DownsizeType
		if inst.InstanceType == desiredType {
			log.Info("already at downsized type, skipping")
			return Result{}, nil
		}

		preferred := strings.TrimSpace(aws.TagValue(tags, aws.PreferredTypeTag))
		if preferred != "" {
			log.Info("preferred type tag already set, preserving existing value", "preferredType", preferred)
		} else {
			log.Info("tagging preferred instance type", "preferredType", inst.InstanceType)
			if err := c.retry(ctx, log, "create preferred type tag", func() error {
				return c.EC2.CreateTags(ctx, inst.InstanceID, map[string]string{
					aws.PreferredTypeTag: inst.InstanceType,
				})
			}); err != nil {
				return Result{}, err
			}
			tags[aws.PreferredTypeTag] = inst.InstanceType
		}

		result.Savings = c.estimateSavings(ctx, log, inst, desiredType, runTimestamp)

	case ActionScaleUp:
		desiredType = strings.TrimSpace(aws.TagValue(tags, aws.PreferredTypeTag))
		if desiredType == "" {
			log.Info("no preferred instance type tag found, skipping")
			return Result{}, nil
		}
		if inst.InstanceType == desiredType {
			log.Info("already at desired type, skipping")
			return Result{}, nil
		}
		snapshotParams = &actualSnapshotParams{
			instanceID:  inst.InstanceID,
			tags:        tags,
			desiredType: desiredType,
			currentType: inst.InstanceType,
		}

	default:
		return Result{}, fmt.Errorf("unsupported action %q", action)
	}

	if err := c.transition(ctx, log, inst, desiredType); err != nil {
		return Result{}, err
	}

	if action == ActionScaleUp && snapshotParams != nil {
		result.Actual = c.recordScaleUp(ctx, log, *snapshotParams)
	}

	result.Processed = true
	return result, nil
}

// transition runs the stop/modify/start sequence to the desired type.
func (c *Controller) transition(ctx context.Context, log logr.Logger, inst aws.Instance, desiredType string) error {
	if inst.State != aws.StateStopped {
		log.Info("stopping instance")
		if err := c.retry(ctx, log, "stop instance", func() error {
			return c.EC2.StopInstance(ctx, inst.InstanceID)
		}); err != nil {
			return err
		}
		if err := c.retry(ctx, log, "wait until stopped", func() error {
			return c.EC2.WaitUntilStopped(ctx, inst.InstanceID)
		}); err != nil {
			return err
		}
		log.Info("instance stopped")
	} else {
		log.Info("instance already stopped")
	}

	log.Info("modifying instance type", "desiredType", desiredType)
	if err := c.retry(ctx, log, "modify instance type", func() error {
		return c.EC2.ModifyInstanceType(ctx, inst.InstanceID, desiredType)
	}); err != nil {
		return err
	}
	if err := c.waitForInstanceType(ctx, log, inst.InstanceID, desiredType); err != nil {
		return err
	}

	log.Info("starting instance")
	if err := c.retry(ctx, log, "start instance", func() error {
		return c.EC2.StartInstance(ctx, inst.InstanceID)
	}); err != nil {
		return err
	}
	if err := c.retry(ctx, log, "wait until running", func() error {
		return c.EC2.WaitUntilRunning(ctx, inst.InstanceID)
	}); err != nil {
		return err
	}
	log.Info("instance running")
	return nil
}

// waitForInstanceType polls until the instance reports the desired type.
// ModifyInstanceAttribute is eventually consistent, so a successful
// modify call alone does not prove the change landed.
func (c *Controller) waitForInstanceType(ctx context.Context, log logr.Logger, instanceID, desiredType string) error {
	timeout := c.TypeConfirmTimeout
	if timeout <= 0 {
		timeout = defaultTypeConfirmTimeout
	}
	interval := c.TypePollInterval
	if interval <= 0 {
		interval = defaultTypePollInterval
	}

	log.Info("waiting for instance type to update", "desiredType", desiredType)
	deadline := c.now().Add(timeout)
	for {
		var currentType string
		err := c.retry(ctx, log, "describe instance type", func() error {
			var describeErr error
			currentType, describeErr = c.EC2.DescribeInstanceType(ctx, instanceID)
			return describeErr
		})
		if err != nil {
			return err
		}
		if currentType == desiredType {
			log.Info("instance type confirmed", "desiredType", desiredType)
			return nil
		}

		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			break
		}
		sleep := remaining
		if sleep < time.Second {
			sleep = time.Second
		}
		if interval < sleep {
			sleep = interval
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("instance %s did not report instance type %s within %s", instanceID, desiredType, timeout)
}

// estimateSavings prices the downsize and persists the metadata tags.
// Best effort: any failure is logged and the scale-down proceeds without
// a savings record.
func (c *Controller) estimateSavings(ctx context.Context, log logr.Logger, inst aws.Instance, desiredType, runTimestamp string) *report.SavingsRecord {
	profile, profileSource := pricing.DeriveProfile(inst, c.DefaultProfile)
	log.Info("using pricing profile",
		"operatingSystem", profile.OperatingSystem,
		"preInstalledSw", profile.PreInstalledSw,
		"licenseModel", profile.LicenseModel,
		"source", profileSource)

	originalRate, err := c.Pricing.HourlyRate(ctx, inst.InstanceType, profile)
	if err != nil {
		log.Info("unable to calculate savings", "error", err.Error())
		return nil
	}
	downsizedRate, err := c.Pricing.HourlyRate(ctx, desiredType, profile)
	if err != nil {
		log.Info("unable to calculate savings", "error", err.Error())
		return nil
	}

	hourlySavings := originalRate - downsizedRate
	if hourlySavings < 0 {
		hourlySavings = 0
	}
	factor, err := c.Discount.Factor(ctx)
	if err != nil {
		log.Info("unable to calculate savings", "error", err.Error())
		return nil
	}
	hourlySavings *= factor

	record := &report.SavingsRecord{
		InstanceID:            inst.InstanceID,
		PreviousType:          inst.InstanceType,
		DownsizedType:         desiredType,
		PricingOS:             profile.OperatingSystem,
		PricingPreInstalledSw: profile.PreInstalledSw,
		PricingLicenseModel:   profile.LicenseModel,
		PricingProfileSource:  profileSource,
		HourlySavings:         report.Round4(hourlySavings),
		ScaleDownTimestamp:    runTimestamp,
	}

	if err := c.retry(ctx, log, "create scale-down metadata tags", func() error {
		return c.EC2.CreateTags(ctx, inst.InstanceID, map[string]string{
			aws.LastScaleDownTimestampTag: runTimestamp,
			aws.LastScaleDownHourlyTag:    strconv.FormatFloat(hourlySavings, 'f', 4, 64),
		})
	}); err != nil {
		log.Info("unable to record scale-down metadata", "error", err.Error())
		return nil
	}

	log.Info("estimated hourly savings",
		"hourlySavings", record.HourlySavings,
		"scaleDownTimestamp", runTimestamp)
	return record
}

type actualSnapshotParams struct {
	instanceID  string
	tags        map[string]string
	desiredType string
	currentType string
}

// recordScaleUp reconstructs the just-finished downtime window from the
// scale-down metadata tags and stamps the scale-up timestamp. Best
// effort: any gap in the metadata skips the record, never the scale-up.
func (c *Controller) recordScaleUp(ctx context.Context, log logr.Logger, params actualSnapshotParams) *report.ActualSavingsRecord {
	downValue := aws.TagValue(params.tags, aws.LastScaleDownTimestampTag)
	hourlyValue := aws.TagValue(params.tags, aws.LastScaleDownHourlyTag)
	if downValue == "" || hourlyValue == "" {
		log.Info("missing scale-down metadata, skipping actual savings calculation")
		return nil
	}

	scaleDownTime, ok := utils.ParseUTC(downValue)
	if !ok {
		log.Info("unable to parse scale-down timestamp", "value", downValue)
		return nil
	}

	if lastUp, ok := utils.ParseUTC(aws.TagValue(params.tags, aws.LastScaleUpTimestampTag)); ok {
		if !lastUp.Before(scaleDownTime) {
			log.Info("actual savings already recorded after the last scale-down window, skipping")
			return nil
		}
	}

	hourlySavings, err := strconv.ParseFloat(strings.TrimSpace(hourlyValue), 64)
	if err != nil {
		log.Info("invalid hourly savings tag", "value", hourlyValue)
		return nil
	}

	scaleUpTime := c.now().UTC().Truncate(time.Second)
	downtimeHours := scaleUpTime.Sub(scaleDownTime).Hours()
	if downtimeHours < 0 {
		downtimeHours = 0
	}
	actualSavings := report.Round4(hourlySavings * downtimeHours)

	log.Info("measured downtime",
		"downtimeHours", report.Round4(downtimeHours),
		"actualSavings", actualSavings)

	record := &report.ActualSavingsRecord{
		InstanceID:          params.instanceID,
		OffHoursType:        params.currentType,
		RestoredType:        params.desiredType,
		ScaleDownTimestamp:  utils.FormatUTC(scaleDownTime),
		ScaleUpTimestamp:    utils.FormatUTC(scaleUpTime),
		DowntimeHours:       report.Round4(downtimeHours),
		HourlySavings:       report.Round4(hourlySavings),
		ActualSavings:       actualSavings,
		ActualSavingsSource: "tag:" + aws.LastScaleDownHourlyTag,
	}

	if err := c.retry(ctx, log, "create scale-up metadata tag", func() error {
		return c.EC2.CreateTags(ctx, params.instanceID, map[string]string{
			aws.LastScaleUpTimestampTag: record.ScaleUpTimestamp,
		})
	}); err != nil {
		log.Info("unable to record scale-up metadata", "error", err.Error())
		return record
	}
	log.Info("recorded scale-up metadata", "timestamp", record.ScaleUpTimestamp)
	return record
}

func (c *Controller) retry(ctx context.Context, log logr.Logger, name string, op func() error) error {
	return RetryWithBackoff(ctx, c.Retry, log, name, op)
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
