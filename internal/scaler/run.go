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

package scaler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/darindeters/DynamicEC2Scaler/internal/report"
	"github.com/darindeters/DynamicEC2Scaler/pkg/aws"
	"github.com/darindeters/DynamicEC2Scaler/pkg/config"
	"github.com/darindeters/DynamicEC2Scaler/pkg/cost"
	"github.com/darindeters/DynamicEC2Scaler/pkg/pricing"
	"github.com/darindeters/DynamicEC2Scaler/pkg/schedule"
	"github.com/darindeters/DynamicEC2Scaler/pkg/utils"
)

// Request is the invocation payload, delivered by EventBridge rules.
type Request struct {
	Action   string `json:"action"`
	Source   string `json:"source"`
	Schedule string `json:"schedule"`
}

// Response summarizes one scaling run.
type Response struct {
	ProcessedInstances int    `json:"processed_instances"`
	Action             string `json:"action"`
	Schedule           string `json:"schedule"`
	SkippedInstances   int    `json:"skipped_instances"`
	Error              string `json:"error,omitempty"`
}

// Runner wires enumeration, orchestration, and recording into one
// invocation-scoped driver.
type Runner struct {
	// NewEC2 returns an EC2 client. Each worker gets its own so a slow
	// waiter on one instance never serializes the others.
	NewEC2 func() aws.EC2Client

	Config   *config.Config
	Pricing  *pricing.Resolver
	Discount *cost.Estimator
	Recorder *report.Recorder
	Log      logr.Logger

	// Now is overridable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Handle executes one scaling run. Handler errors mark the invocation
// failed; enumeration failures instead return a structured Response with
// the error field set, so EventBridge does not retry a run that may have
// partially mutated the fleet.
func (r *Runner) Handle(ctx context.Context, req Request) (Response, error) {
	action := Action(req.Action)
	if !ValidAction(action) {
		return Response{}, fmt.Errorf("invalid or missing action %q, must be %q or %q", req.Action, ActionScaleDown, ActionScaleUp)
	}
	if req.Source == "" || req.Source == "manual" {
		return Response{}, fmt.Errorf("manual execution is blocked, use EventBridge scheduled rules")
	}
	scheduleName := schedule.Normalize(req.Schedule)

	runStart := r.now().UTC().Truncate(time.Second)
	runTimestamp := utils.FormatUTC(runStart)

	log := r.Log.WithValues("action", string(action), "schedule", scheduleName)
	log.Info("starting scaling run", "runTimestamp", runTimestamp)

	instances, err := r.NewEC2().DescribeScalableInstances(ctx)
	if err != nil {
		log.Error(err, "unable to describe instances for scaling run")
		return Response{
			Action:   string(action),
			Schedule: scheduleName,
			Error:    "describe_instances_failed",
		}, nil
	}
	if len(instances) == 0 {
		log.Info("no instances opted into dynamic scaling, skipping run")
		return Response{Action: string(action), Schedule: scheduleName}, nil
	}

	toProcess, skipped := r.selectInstances(log, instances, scheduleName)
	if len(toProcess) == 0 {
		log.Info("no instances matched the requested schedule, skipping run", "skipped", skipped)
		return Response{
			Action:           string(action),
			Schedule:         scheduleName,
			SkippedInstances: skipped,
		}, nil
	}

	log.Info("processing instances",
		"count", len(toProcess),
		"batchSize", r.Config.BatchSize,
		"concurrency", r.Config.MaxConcurrency)

	orchestrator := &Orchestrator{
		BatchSize:   r.Config.BatchSize,
		Concurrency: r.Config.MaxConcurrency,
		FailFast:    r.Config.FailFast,
		Log:         log,
		Process:     r.processInstance,
	}

	processed, savings, actual, err := orchestrator.Run(ctx, toProcess, action, runTimestamp)
	if err != nil {
		// fail-fast abort: skip recording, the run is incomplete
		return Response{
			ProcessedInstances: processed,
			Action:             string(action),
			Schedule:           scheduleName,
			SkippedInstances:   skipped,
		}, err
	}

	if action == ActionScaleDown {
		factor, err := r.Discount.Factor(ctx)
		if err != nil {
			return Response{
				ProcessedInstances: processed,
				Action:             string(action),
				Schedule:           scheduleName,
				SkippedInstances:   skipped,
			}, err
		}
		r.Recorder.RecordSavings(ctx, savings, runStart, factor, r.Discount.Source())
	} else {
		r.Recorder.RecordActualSavings(ctx, actual, runStart)
	}

	log.Info("scaling run completed", "processed", processed, "skipped", skipped)
	return Response{
		ProcessedInstances: processed,
		Action:             string(action),
		Schedule:           scheduleName,
		SkippedInstances:   skipped,
	}, nil
}

// processInstance builds an invocation-scoped controller around a fresh
// EC2 client and runs the instance through it.
func (r *Runner) processInstance(ctx context.Context, inst aws.Instance, action Action, runTimestamp string) (Result, error) {
	controller := &Controller{
		EC2:      r.NewEC2(),
		Pricing:  r.Pricing,
		Discount: r.Discount,
		Retry: RetryConfig{
			MaxAttempts: r.Config.MaxRetries,
			BackoffBase: time.Duration(r.Config.BackoffSeconds * float64(time.Second)),
		},
		DefaultProfile: pricing.Profile{
			OperatingSystem: r.Config.DefaultOperatingSystem,
			PreInstalledSw:  r.Config.DefaultPreInstalledSw,
			LicenseModel:    r.Config.DefaultLicenseModel,
		},
		DownsizeType: r.Config.DefaultDownsizeType,
		Log:          r.Log,
		Now:          r.Now,
	}
	return controller.Process(ctx, inst, action, runTimestamp)
}

// selectInstances deduplicates the fleet by instance ID and filters it
// down to the requested schedule. Returns the instances to process and
// how many were skipped by the schedule filter.
func (r *Runner) selectInstances(log logr.Logger, instances []aws.Instance, scheduleName string) ([]aws.Instance, int) {
	seen := make(map[string]bool, len(instances))
	var toProcess []aws.Instance
	skipped := 0

	for _, inst := range instances {
		if seen[inst.InstanceID] {
			log.Info("skipping duplicate instance entry", "instance", inst.InstanceID)
			continue
		}
		seen[inst.InstanceID] = true

		if !schedule.Matches(inst.Tags, r.Config.ScheduleTagKey, scheduleName) {
			skipped++
			log.Info("skipping instance, schedule tag did not match", "instance", inst.InstanceID)
			continue
		}
		toProcess = append(toProcess, inst)
	}
	return toProcess, skipped
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
