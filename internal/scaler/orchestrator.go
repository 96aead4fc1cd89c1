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
	"sync"

	"github.com/go-logr/logr"

	"github.com/darindeters/DynamicEC2Scaler/internal/report"
	"github.com/darindeters/DynamicEC2Scaler/pkg/aws"
)

// ProcessFunc runs one instance through the requested action.
type ProcessFunc func(ctx context.Context, inst aws.Instance, action Action, runTimestamp string) (Result, error)

// Orchestrator fans instances out over a bounded worker pool, batch by
// batch. Batches run strictly in sequence; a batch's failures never stop
// its siblings mid-flight.
type Orchestrator struct {
	BatchSize   int
	Concurrency int

	// FailFast aborts the run after the first batch that saw a failure.
	// The failing batch still runs to completion so no instance is left
	// mid-transition.
	FailFast bool

	Process ProcessFunc
	Log     logr.Logger
}

// Run processes all instances and returns the processed count plus the
// collected savings records. With FailFast set, a batch failure is
// returned after that batch completes; otherwise failures are logged and
// the error stays nil.
func (o *Orchestrator) Run(ctx context.Context, instances []aws.Instance, action Action, runTimestamp string) (int, []report.SavingsRecord, []report.ActualSavingsRecord, error) {
	batchSize := o.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	concurrency := o.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu        sync.Mutex
		processed int
		savings   []report.SavingsRecord
		actual    []report.ActualSavingsRecord
		failures  []error
	)

	for start := 0; start < len(instances); start += batchSize {
		end := start + batchSize
		if end > len(instances) {
			end = len(instances)
		}
		batch := instances[start:end]
		o.Log.Info("processing batch", "size", len(batch), "action", string(action))

		sem := make(chan struct{}, concurrency)
		var wg sync.WaitGroup
		var batchFailed bool

		for _, inst := range batch {
			wg.Add(1)
			sem <- struct{}{}
			go func(inst aws.Instance) {
				defer wg.Done()
				defer func() { <-sem }()

				result, err := o.Process(ctx, inst, action, runTimestamp)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					o.Log.Error(err, "error processing instance", "instance", inst.InstanceID)
					failures = append(failures, fmt.Errorf("instance %s: %w", inst.InstanceID, err))
					batchFailed = true
					return
				}
				if result.Processed {
					processed++
				}
				if result.Savings != nil {
					savings = append(savings, *result.Savings)
				}
				if result.Actual != nil {
					actual = append(actual, *result.Actual)
				}
			}(inst)
		}
		wg.Wait()

		if o.FailFast && batchFailed {
			return processed, savings, actual, fmt.Errorf("aborting after failed batch: %w", failures[len(failures)-1])
		}
	}

	return processed, savings, actual, nil
}
