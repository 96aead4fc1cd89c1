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
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// The Pricing and Cost Explorer APIs are only served from a handful of
// regions; us-east-1 is the conventional endpoint for both.
const globalAPIRegion = "us-east-1"

// ClientConfig configures AWS client creation.
type ClientConfig struct {
	// Region is the deployment region for EC2 calls. Also used to resolve
	// the price catalog location.
	Region string

	// AssumeRoleARN optionally names an IAM role to assume for all API
	// calls. When empty, the default credential chain is used directly.
	AssumeRoleARN string
}

// Clients creates per-service AWS clients from one shared credential
// source. EC2 clients are created fresh per call so that concurrent worker
// tasks each hold an independent handle.
type Clients struct {
	cfg       aws.Config
	globalCfg aws.Config
}

// NewClients loads the default AWS configuration (environment, shared
// credentials file, instance/task role) and optionally wraps it with an STS
// AssumeRole credential provider.
func NewClients(ctx context.Context, cc ClientConfig) (*Clients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cc.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	if cc.AssumeRoleARN != "" {
		stsClient := sts.NewFromConfig(cfg)
		cfg.Credentials = aws.NewCredentialsCache(
			stscreds.NewAssumeRoleProvider(stsClient, cc.AssumeRoleARN),
		)
	}

	globalCfg := cfg.Copy()
	globalCfg.Region = globalAPIRegion

	return &Clients{cfg: cfg, globalCfg: globalCfg}, nil
}

// EC2 returns a new EC2 client. Each call builds a fresh handle; worker
// tasks must not share one.
func (c *Clients) EC2() EC2Client {
	return NewRealEC2Client(c.cfg)
}

// Pricing returns a price catalog client pinned to the pricing endpoint region.
func (c *Clients) Pricing() PricingClient {
	return NewRealPricingClient(c.globalCfg)
}

// CostExplorer returns a Cost Explorer client pinned to us-east-1.
func (c *Clients) CostExplorer() CostExplorerClient {
	return NewRealCostExplorerClient(c.globalCfg)
}

// Storage returns an S3-backed report store.
func (c *Clients) Storage() StorageClient {
	return NewRealStorageClient(c.cfg)
}

// Metrics returns a CloudWatch metrics client.
func (c *Clients) Metrics() MetricsClient {
	return NewRealMetricsClient(c.cfg)
}
