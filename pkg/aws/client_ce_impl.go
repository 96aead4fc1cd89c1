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
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
)

const costExplorerDateLayout = "2006-01-02"

// RealCostExplorerClient is the production CostExplorerClient backed by the
// AWS Cost Explorer API.
type RealCostExplorerClient struct {
	client *costexplorer.Client
}

// NewRealCostExplorerClient creates a Cost Explorer client. The supplied
// configuration must be pinned to us-east-1.
func NewRealCostExplorerClient(cfg aws.Config) *RealCostExplorerClient {
	return &RealCostExplorerClient{client: costexplorer.NewFromConfig(cfg)}
}

// SavingsPlansCoverage returns one page of daily Savings Plans coverage.
func (c *RealCostExplorerClient) SavingsPlansCoverage(ctx context.Context, start, end time.Time, nextToken string) (CoveragePage, error) {
	input := &costexplorer.GetSavingsPlansCoverageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(start.Format(costExplorerDateLayout)),
			End:   aws.String(end.Format(costExplorerDateLayout)),
		},
		Granularity: cetypes.GranularityDaily,
	}
	if nextToken != "" {
		input.NextToken = aws.String(nextToken)
	}

	out, err := c.client.GetSavingsPlansCoverage(ctx, input)
	if err != nil {
		return CoveragePage{}, fmt.Errorf("savings plans coverage query failed: %w", err)
	}

	page := CoveragePage{NextToken: aws.ToString(out.NextToken)}
	for _, item := range out.SavingsPlansCoverages {
		if item.Coverage == nil {
			continue
		}
		page.Coverages = append(page.Coverages, Coverage{
			Savings:   parseAmount(item.Coverage.SpendCoveredBySavingsPlans),
			TotalCost: parseAmount(item.Coverage.OnDemandCost),
		})
	}
	return page, nil
}

// parseAmount converts a Cost Explorer string amount to a float, treating
// missing or malformed values as zero.
func parseAmount(value *string) float64 {
	if value == nil {
		return 0
	}
	parsed, err := strconv.ParseFloat(*value, 64)
	if err != nil {
		return 0
	}
	return parsed
}
