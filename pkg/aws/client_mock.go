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
	"sync"
	"time"
)

// MockEC2Client is a configurable in-memory EC2Client for testing. It
// tracks every mutating call and simulates instance-type convergence.
type MockEC2Client struct {
	mu sync.Mutex

	// Instances is returned by DescribeScalableInstances.
	Instances []Instance

	// Types maps instance ID to the type reported by DescribeInstanceType.
	// ModifyInstanceType updates it immediately unless TypeResponses
	// scripts the answers.
	Types map[string]string

	// TypeResponses optionally scripts DescribeInstanceType answers per
	// instance; each call consumes one entry before falling back to Types.
	TypeResponses map[string][]string

	// FailFor injects an error for every mutating call against a specific
	// instance ID.
	FailFor map[string]error

	// Per-operation error injection.
	DescribeError error
	StopError     error
	StartError    error
	ModifyError   error
	TagError      error
	WaitError     error

	// Call tracking.
	StopCalls   []string
	StartCalls  []string
	ModifyCalls []ModifyCall
	TagCalls    []TagCall
}

// ModifyCall records one ModifyInstanceType invocation.
type ModifyCall struct {
	InstanceID   string
	InstanceType string
}

// TagCall records one CreateTags invocation.
type TagCall struct {
	InstanceID string
	Tags       map[string]string
}

// NewMockEC2Client creates an empty mock EC2 client.
func NewMockEC2Client() *MockEC2Client {
	return &MockEC2Client{
		Types:         make(map[string]string),
		TypeResponses: make(map[string][]string),
		FailFor:       make(map[string]error),
	}
}

func (m *MockEC2Client) failure(instanceID string, opErr error) error {
	if err, ok := m.FailFor[instanceID]; ok {
		return err
	}
	return opErr
}

// DescribeScalableInstances returns the configured instance list.
func (m *MockEC2Client) DescribeScalableInstances(_ context.Context) ([]Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DescribeError != nil {
		return nil, m.DescribeError
	}
	return append([]Instance(nil), m.Instances...), nil
}

// DescribeInstanceType reports the scripted or converged type.
func (m *MockEC2Client) DescribeInstanceType(_ context.Context, instanceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if responses := m.TypeResponses[instanceID]; len(responses) > 0 {
		next := responses[0]
		m.TypeResponses[instanceID] = responses[1:]
		return next, nil
	}
	return m.Types[instanceID], nil
}

// StopInstance records the call.
func (m *MockEC2Client) StopInstance(_ context.Context, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(instanceID, m.StopError); err != nil {
		return err
	}
	m.StopCalls = append(m.StopCalls, instanceID)
	return nil
}

// StartInstance records the call.
func (m *MockEC2Client) StartInstance(_ context.Context, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(instanceID, m.StartError); err != nil {
		return err
	}
	m.StartCalls = append(m.StartCalls, instanceID)
	return nil
}

// WaitUntilStopped returns immediately (or the injected error).
func (m *MockEC2Client) WaitUntilStopped(_ context.Context, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure(instanceID, m.WaitError)
}

// WaitUntilRunning returns immediately (or the injected error).
func (m *MockEC2Client) WaitUntilRunning(_ context.Context, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure(instanceID, m.WaitError)
}

// ModifyInstanceType records the call and converges the reported type.
func (m *MockEC2Client) ModifyInstanceType(_ context.Context, instanceID, instanceType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(instanceID, m.ModifyError); err != nil {
		return err
	}
	m.ModifyCalls = append(m.ModifyCalls, ModifyCall{InstanceID: instanceID, InstanceType: instanceType})
	m.Types[instanceID] = instanceType
	return nil
}

// CreateTags records the call.
func (m *MockEC2Client) CreateTags(_ context.Context, instanceID string, tags map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(instanceID, m.TagError); err != nil {
		return err
	}
	copied := make(map[string]string, len(tags))
	for k, v := range tags {
		copied[k] = v
	}
	m.TagCalls = append(m.TagCalls, TagCall{InstanceID: instanceID, Tags: copied})
	return nil
}

// TagsWrittenTo returns the union of all tags written to one instance.
func (m *MockEC2Client) TagsWrittenTo(instanceID string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	merged := make(map[string]string)
	for _, call := range m.TagCalls {
		if call.InstanceID != instanceID {
			continue
		}
		for k, v := range call.Tags {
			merged[k] = v
		}
	}
	return merged
}

// MockPricingResponse is one scripted GetProducts answer.
type MockPricingResponse struct {
	PriceList []string
	Err       error
}

// MockPricingClient scripts catalog answers in call order and records the
// filter set of every query.
type MockPricingClient struct {
	mu sync.Mutex

	// Responses are consumed one per GetProducts call. When exhausted,
	// further calls return an empty price list.
	Responses []MockPricingResponse

	// Calls records the filters of each query in order.
	Calls [][]PricingFilter
}

// NewMockPricingClient creates an empty mock pricing client.
func NewMockPricingClient() *MockPricingClient {
	return &MockPricingClient{}
}

// GetProducts returns the next scripted response.
func (m *MockPricingClient) GetProducts(_ context.Context, filters []PricingFilter, _ int32) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recorded := append([]PricingFilter(nil), filters...)
	m.Calls = append(m.Calls, recorded)

	if len(m.Responses) == 0 {
		return nil, nil
	}
	next := m.Responses[0]
	m.Responses = m.Responses[1:]
	return next.PriceList, next.Err
}

// CallCount returns how many catalog queries were issued.
func (m *MockPricingClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockCostExplorerClient scripts coverage pages in order.
type MockCostExplorerClient struct {
	mu sync.Mutex

	Pages []CoveragePage
	Err   error

	// Calls counts coverage queries.
	Calls int
}

// SavingsPlansCoverage returns the next scripted page.
func (m *MockCostExplorerClient) SavingsPlansCoverage(_ context.Context, _, _ time.Time, _ string) (CoveragePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return CoveragePage{}, m.Err
	}
	if len(m.Pages) == 0 {
		return CoveragePage{}, nil
	}
	next := m.Pages[0]
	m.Pages = m.Pages[1:]
	return next, nil
}

// MockStorageClient captures written report objects.
type MockStorageClient struct {
	mu sync.Mutex

	Err error

	// Objects maps "bucket/key" to the written body.
	Objects map[string][]byte
}

// NewMockStorageClient creates an empty mock report store.
func NewMockStorageClient() *MockStorageClient {
	return &MockStorageClient{Objects: make(map[string][]byte)}
}

// PutReport stores the object in memory.
func (m *MockStorageClient) PutReport(_ context.Context, bucket, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Objects[bucket+"/"+key] = append([]byte(nil), body...)
	return nil
}

// MockMetricsClient captures published metric batches.
type MockMetricsClient struct {
	mu sync.Mutex

	Err error

	// Batches holds every PutMetricData payload in call order.
	Batches [][]MetricDatum

	// Namespaces holds the namespace of each call.
	Namespaces []string
}

// PutMetricData captures the batch, then returns the scripted error if
// one is set.
func (m *MockMetricsClient) PutMetricData(_ context.Context, namespace string, data []MetricDatum) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Batches = append(m.Batches, append([]MetricDatum(nil), data...))
	m.Namespaces = append(m.Namespaces, namespace)
	return m.Err
}
