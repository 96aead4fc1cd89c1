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
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRetryWithBackoff_Success tests successful operation on first attempt.
func TestRetryWithBackoff_Success(t *testing.T) {
	ctx := context.Background()
	config := DefaultRetryConfig()
	log := logr.Discard()

	callCount := 0
	operation := func() error {
		callCount++
		return nil
	}

	err := RetryWithBackoff(ctx, config, log, "test-operation", operation)

	require.NoError(t, err)
	assert.Equal(t, 1, callCount, "operation should be called once")
}

// TestRetryWithBackoff_SuccessAfterRetries tests successful operation after failures.
func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	ctx := context.Background()
	config := RetryConfig{MaxAttempts: 5, BackoffBase: time.Millisecond}
	log := logr.Discard()

	callCount := 0
	operation := func() error {
		callCount++
		if callCount < 3 {
			return errors.New("transient error")
		}
		return nil
	}

	err := RetryWithBackoff(ctx, config, log, "test-operation", operation)

	require.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

// TestRetryWithBackoff_AllAttemptsFail tests exhausting every attempt.
func TestRetryWithBackoff_AllAttemptsFail(t *testing.T) {
	ctx := context.Background()
	config := RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond}
	log := logr.Discard()

	sentinel := errors.New("persistent error")
	callCount := 0
	operation := func() error {
		callCount++
		return sentinel
	}

	err := RetryWithBackoff(ctx, config, log, "test-operation", operation)

	require.Error(t, err)
	assert.Equal(t, 3, callCount)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "test-operation failed after 3 attempts")
}

// TestRetryWithBackoff_ContextCancellation tests that cancellation stops retries.
func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := RetryConfig{MaxAttempts: 10, BackoffBase: time.Hour}
	log := logr.Discard()

	callCount := 0
	operation := func() error {
		callCount++
		cancel()
		return errors.New("failing")
	}

	err := RetryWithBackoff(ctx, config, log, "test-operation", operation)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount)
}

// TestRetryWithBackoff_ZeroAttemptsClamped tests that MaxAttempts below one behaves as one.
func TestRetryWithBackoff_ZeroAttemptsClamped(t *testing.T) {
	ctx := context.Background()
	config := RetryConfig{MaxAttempts: 0, BackoffBase: time.Millisecond}
	log := logr.Discard()

	callCount := 0
	err := RetryWithBackoff(ctx, config, log, "test-operation", func() error {
		callCount++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, callCount)
}
