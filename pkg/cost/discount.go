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

// Package cost estimates the effective discount that savings plans apply
// to on-demand rates, so that reported savings reflect what the account
// actually pays.
package cost

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/darindeters/DynamicEC2Scaler/pkg/aws"
)

// Discount factor sources.
const (
	SourceManual   = "manual"
	SourceCoverage = "coverage"
)

// coveragePercentCeiling keeps a fully-covered account from producing a
// zero multiplier, which would hide all savings.
const coveragePercentCeiling = 0.9999

// Estimator computes the savings-plan discount factor once per process.
// The factor multiplies on-demand rate deltas: 1.0 means no discount,
// 0.7 means the account effectively pays 70% of on-demand.
type Estimator struct {
	client        aws.CostExplorerClient
	mode          string
	manualPercent float64
	lookbackDays  int
	log           logr.Logger
	now           func() time.Time

	mu       sync.Mutex
	computed bool
	factor   float64
	source   string
}

// NewEstimator builds an Estimator. Mode is "manual" or "coverage";
// anything else behaves as manual.
func NewEstimator(client aws.CostExplorerClient, mode string, manualPercent float64, lookbackDays int, log logr.Logger) *Estimator {
	return &Estimator{
		client:        client,
		mode:          mode,
		manualPercent: manualPercent,
		lookbackDays:  lookbackDays,
		log:           log.WithName("discount"),
		now:           time.Now,
	}
}

// Factor returns the discount factor, computing it on first use. In
// coverage mode a Cost Explorer failure falls back to the manual percent;
// a manual percent outside [0, 100] is a hard error either way.
func (e *Estimator) Factor(ctx context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.computed {
		return e.factor, nil
	}

	if e.mode == SourceCoverage {
		factor, err := e.coverageFactor(ctx)
		if err == nil {
			e.factor, e.source, e.computed = factor, SourceCoverage, true
			return factor, nil
		}
		e.log.Info("falling back to manual savings plan discount due to coverage error",
			"error", err.Error())
	}

	factor, err := e.manualFactor()
	if err != nil {
		return 0, err
	}
	e.factor, e.source, e.computed = factor, SourceManual, true
	return factor, nil
}

// Source reports where the factor came from. Only meaningful after a
// successful Factor call.
func (e *Estimator) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source
}

func (e *Estimator) manualFactor() (float64, error) {
	if e.manualPercent < 0 || e.manualPercent > 100 {
		return 0, fmt.Errorf("savings plan discount percent must be between 0 and 100, got %v", e.manualPercent)
	}
	return 1 - e.manualPercent/100.0, nil
}

// coverageFactor derives the discount from savings-plan coverage over the
// lookback window: covered spend divided by total spend, capped just
// below 100%.
func (e *Estimator) coverageFactor(ctx context.Context) (float64, error) {
	if e.lookbackDays < 1 || e.lookbackDays > 90 {
		return 0, fmt.Errorf("coverage lookback days must be between 1 and 90, got %d", e.lookbackDays)
	}

	end := e.now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -e.lookbackDays)

	var totalSavings, totalCost float64
	nextToken := ""
	for {
		page, err := e.client.SavingsPlansCoverage(ctx, start, end, nextToken)
		if err != nil {
			return 0, fmt.Errorf("fetching savings plan coverage: %w", err)
		}
		for _, coverage := range page.Coverages {
			totalSavings += coverage.Savings
			totalCost += coverage.TotalCost
		}
		nextToken = page.NextToken
		if nextToken == "" {
			break
		}
	}

	denominator := totalCost + totalSavings
	if denominator <= 0 {
		return 0, fmt.Errorf("savings plan coverage data is empty for the selected window")
	}

	ratio := totalSavings / denominator
	if ratio > coveragePercentCeiling {
		ratio = coveragePercentCeiling
	}
	if ratio < 0 {
		ratio = 0
	}
	discountPercent := ratio * 100

	e.log.Info("derived savings plan discount percent from cost explorer coverage",
		"discountPercent", discountPercent, "lookbackDays", e.lookbackDays)
	return 1 - discountPercent/100.0, nil
}
