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
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
)

const ec2ServiceCode = "AmazonEC2"

// RealPricingClient is the production PricingClient backed by the AWS
// Pricing API.
type RealPricingClient struct {
	client *pricing.Client
}

// NewRealPricingClient creates a pricing client. The supplied configuration
// must be pinned to a region that serves the Pricing API.
func NewRealPricingClient(cfg aws.Config) *RealPricingClient {
	return &RealPricingClient{client: pricing.NewFromConfig(cfg)}
}

// GetProducts queries the EC2 price catalog with TERM_MATCH filters and
// returns the raw price-list JSON documents.
func (c *RealPricingClient) GetProducts(ctx context.Context, filters []PricingFilter, maxResults int32) ([]string, error) {
	apiFilters := make([]pricingtypes.Filter, 0, len(filters))
	for _, f := range filters {
		apiFilters = append(apiFilters, pricingtypes.Filter{
			Type:  pricingtypes.FilterTypeTermMatch,
			Field: aws.String(f.Field),
			Value: aws.String(f.Value),
		})
	}

	out, err := c.client.GetProducts(ctx, &pricing.GetProductsInput{
		ServiceCode: aws.String(ec2ServiceCode),
		Filters:     apiFilters,
		MaxResults:  aws.Int32(maxResults),
	})
	if err != nil {
		return nil, fmt.Errorf("pricing catalog query failed: %w", err)
	}
	return out.PriceList, nil
}
