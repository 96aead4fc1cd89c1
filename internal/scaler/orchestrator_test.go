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
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darindeters/DynamicEC2Scaler/internal/report"
	"github.com/darindeters/DynamicEC2Scaler/pkg/aws"
)

func instanceFleet(n int) []aws.Instance {
	fleet := make([]aws.Instance, n)
	for i := range fleet {
		fleet[i] = aws.Instance{
			InstanceID:   fmt.Sprintf("i-%03d", i),
			InstanceType: "m5.large",
			State:        aws.StateRunning,
		}
	}
	return fleet
}

func TestOrchestratorProcessesAll(t *testing.T) {
	var calls int32
	o := &Orchestrator{
		BatchSize:   4,
		Concurrency: 2,
		Log:         logr.Discard(),
		Process: func(_ context.Context, inst aws.Instance, _ Action, _ string) (Result, error) {
			atomic.AddInt32(&calls, 1)
			return Result{
				Processed: true,
				Savings:   &report.SavingsRecord{InstanceID: inst.InstanceID},
			}, nil
		},
	}

	processed, savings, actual, err := o.Run(context.Background(), instanceFleet(10), ActionScaleDown, "ts")
	require.NoError(t, err)
	assert.Equal(t, 10, processed)
	assert.Len(t, savings, 10)
	assert.Empty(t, actual)
	assert.Equal(t, int32(10), calls)
}

func TestOrchestratorFailureDoesNotStopRun(t *testing.T) {
	o := &Orchestrator{
		BatchSize:   3,
		Concurrency: 2,
		Log:         logr.Discard(),
		Process: func(_ context.Context, inst aws.Instance, _ Action, _ string) (Result, error) {
			if inst.InstanceID == "i-004" {
				return Result{}, errors.New("modify failed")
			}
			return Result{Processed: true}, nil
		},
	}

	processed, _, _, err := o.Run(context.Background(), instanceFleet(9), ActionScaleDown, "ts")
	require.NoError(t, err)
	assert.Equal(t, 8, processed)
}

func TestOrchestratorFailFast(t *testing.T) {
	var calls int32
	o := &Orchestrator{
		BatchSize:   3,
		Concurrency: 3,
		FailFast:    true,
		Log:         logr.Discard(),
		Process: func(_ context.Context, inst aws.Instance, _ Action, _ string) (Result, error) {
			atomic.AddInt32(&calls, 1)
			if inst.InstanceID == "i-001" {
				return Result{}, errors.New("modify failed")
			}
			return Result{Processed: true}, nil
		},
	}

	processed, _, _, err := o.Run(context.Background(), instanceFleet(9), ActionScaleDown, "ts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborting after failed batch")

	// the failing batch ran to completion, the later batches never started
	assert.Equal(t, int32(3), calls)
	assert.Equal(t, 2, processed)
}

func TestOrchestratorRespectsConcurrencyLimit(t *testing.T) {
	var mu sync.Mutex
	inFlight := 0
	peak := 0

	o := &Orchestrator{
		BatchSize:   10,
		Concurrency: 3,
		Log:         logr.Discard(),
		Process: func(_ context.Context, _ aws.Instance, _ Action, _ string) (Result, error) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			return Result{Processed: true}, nil
		},
	}

	processed, _, _, err := o.Run(context.Background(), instanceFleet(10), ActionScaleUp, "ts")
	require.NoError(t, err)
	assert.Equal(t, 10, processed)
	assert.LessOrEqual(t, peak, 3)
	assert.Greater(t, peak, 1, "pool should actually run work in parallel")
}

func TestOrchestratorBatchSequencing(t *testing.T) {
	var mu sync.Mutex
	var order []string

	o := &Orchestrator{
		BatchSize:   2,
		Concurrency: 2,
		Log:         logr.Discard(),
		Process: func(_ context.Context, inst aws.Instance, _ Action, _ string) (Result, error) {
			mu.Lock()
			order = append(order, inst.InstanceID)
			mu.Unlock()
			return Result{Processed: true}, nil
		},
	}

	_, _, _, err := o.Run(context.Background(), instanceFleet(6), ActionScaleDown, "ts")
	require.NoError(t, err)
	require.Len(t, order, 6)

	// within a batch order is free, but batch boundaries are strict
	assert.ElementsMatch(t, []string{"i-000", "i-001"}, order[0:2])
	assert.ElementsMatch(t, []string{"i-002", "i-003"}, order[2:4])
	assert.ElementsMatch(t, []string{"i-004", "i-005"}, order[4:6])
}

func TestOrchestratorEmptyFleet(t *testing.T) {
	o := &Orchestrator{
		BatchSize:   5,
		Concurrency: 2,
		Log:         logr.Discard(),
		Process: func(_ context.Context, _ aws.Instance, _ Action, _ string) (Result, error) {
			t.Error("process should not be called")
			return Result{}, nil
		},
	}

	processed, savings, actual, err := o.Run(context.Background(), nil, ActionScaleDown, "ts")
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Empty(t, savings)
	assert.Empty(t, actual)
}
