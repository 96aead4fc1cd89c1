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
)

// RetryConfig configures retry behavior for AWS mutations.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (default: 3)
	MaxAttempts int

	// BackoffBase is the linear backoff base: the delay before attempt
	// n+1 is BackoffBase * n (default: 5s)
	BackoffBase time.Duration
}

// DefaultRetryConfig returns sensible defaults for retry behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BackoffBase: 5 * time.Second,
	}
}

// RetryWithBackoff executes an operation with linear backoff retry logic.
// This provides self-healing behavior for transient errors (network
// issues, API rate limits, eventual consistency).
//
// The operation is retried up to config.MaxAttempts times. If all
// attempts are exhausted, the last error is returned wrapped with the
// operation name.
func RetryWithBackoff(
	ctx context.Context,
	config RetryConfig,
	log logr.Logger,
	operationName string,
	operation func() error,
) error {
	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 1 {
				log.Info("operation succeeded after retries",
					"operation", operationName,
					"attempts", attempt)
			}
			return nil
		}
		lastErr = err

		log.Error(err, "operation failed",
			"operation", operationName,
			"attempt", attempt,
			"max_attempts", maxAttempts)

		if attempt == maxAttempts {
			break
		}

		// linear backoff: base * attempt number
		delay := time.Duration(float64(config.BackoffBase) * float64(attempt))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxAttempts, lastErr)
}
