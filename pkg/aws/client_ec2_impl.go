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
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// stateWaitTimeout bounds the SDK stop/start waiters. Stops of large
// instances can take several minutes.
const stateWaitTimeout = 10 * time.Minute

// RealEC2Client is the production EC2Client backed by the AWS SDK v2.
type RealEC2Client struct {
	client *ec2.Client
}

// NewRealEC2Client creates an EC2 client from the given AWS configuration.
func NewRealEC2Client(cfg aws.Config) *RealEC2Client {
	return &RealEC2Client{client: ec2.NewFromConfig(cfg)}
}

// DescribeScalableInstances returns all instances tagged for dynamic scaling
// in running or stopped state, across all pages.
func (c *RealEC2Client) DescribeScalableInstances(ctx context.Context) ([]Instance, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{
				Name:   aws.String("tag:" + ScalingEnabledTag),
				Values: []string{"true"},
			},
			{
				Name:   aws.String("instance-state-name"),
				Values: []string{StateRunning, StateStopped},
			},
		},
	}

	var instances []Instance
	paginator := ec2.NewDescribeInstancesPaginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe instances: %w", err)
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				instances = append(instances, convertInstance(inst))
			}
		}
	}
	return instances, nil
}

// DescribeInstanceType returns the current instance type of one instance.
func (c *RealEC2Client) DescribeInstanceType(ctx context.Context, instanceID string) (string, error) {
	out, err := c.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe instance %s: %w", instanceID, err)
	}
	for _, reservation := range out.Reservations {
		for _, inst := range reservation.Instances {
			return string(inst.InstanceType), nil
		}
	}
	return "", fmt.Errorf("instance %s not found", instanceID)
}

// StopInstance requests a stop without waiting for completion.
func (c *RealEC2Client) StopInstance(ctx context.Context, instanceID string) error {
	_, err := c.client.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return fmt.Errorf("failed to stop instance %s: %w", instanceID, err)
	}
	return nil
}

// StartInstance requests a start without waiting for completion.
func (c *RealEC2Client) StartInstance(ctx context.Context, instanceID string) error {
	_, err := c.client.StartInstances(ctx, &ec2.StartInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return fmt.Errorf("failed to start instance %s: %w", instanceID, err)
	}
	return nil
}

// WaitUntilStopped blocks until the instance reports stopped state.
func (c *RealEC2Client) WaitUntilStopped(ctx context.Context, instanceID string) error {
	waiter := ec2.NewInstanceStoppedWaiter(c.client)
	err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	}, stateWaitTimeout)
	if err != nil {
		return fmt.Errorf("instance %s did not reach stopped state: %w", instanceID, err)
	}
	return nil
}

// WaitUntilRunning blocks until the instance reports running state.
func (c *RealEC2Client) WaitUntilRunning(ctx context.Context, instanceID string) error {
	waiter := ec2.NewInstanceRunningWaiter(c.client)
	err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	}, stateWaitTimeout)
	if err != nil {
		return fmt.Errorf("instance %s did not reach running state: %w", instanceID, err)
	}
	return nil
}

// ModifyInstanceType requests an instance-type change on a stopped instance.
func (c *RealEC2Client) ModifyInstanceType(ctx context.Context, instanceID, instanceType string) error {
	_, err := c.client.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
		InstanceId: aws.String(instanceID),
		InstanceType: &ec2types.AttributeValue{
			Value: aws.String(instanceType),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to modify instance type of %s: %w", instanceID, err)
	}
	return nil
}

// CreateTags writes tags on one instance.
func (c *RealEC2Client) CreateTags(ctx context.Context, instanceID string, tags map[string]string) error {
	ec2Tags := make([]ec2types.Tag, 0, len(tags))
	for key, value := range tags {
		ec2Tags = append(ec2Tags, ec2types.Tag{
			Key:   aws.String(key),
			Value: aws.String(value),
		})
	}
	_, err := c.client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{instanceID},
		Tags:      ec2Tags,
	})
	if err != nil {
		return fmt.Errorf("failed to tag instance %s: %w", instanceID, err)
	}
	return nil
}

// convertInstance maps an SDK instance to the internal descriptor.
func convertInstance(inst ec2types.Instance) Instance {
	tags := make(map[string]string, len(inst.Tags))
	for _, tag := range inst.Tags {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}

	state := "unknown"
	if inst.State != nil {
		state = string(inst.State.Name)
	}

	return Instance{
		InstanceID:      aws.ToString(inst.InstanceId),
		InstanceType:    string(inst.InstanceType),
		State:           state,
		PlatformDetails: aws.ToString(inst.PlatformDetails),
		Platform:        string(inst.Platform),
		UsageOperation:  aws.ToString(inst.UsageOperation),
		Tags:            tags,
	}
}
