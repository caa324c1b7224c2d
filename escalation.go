/*
Copyright 2025 Geocell Labs Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package coverage

import (
	"time"

	"github.com/geocell-labs/coverage/config"
)

// Decision is the outcome of evaluating a failed point against the
// escalation policy.
type Decision int

const (
	// DecisionRetry re-enqueues the point with a backoff delay.
	DecisionRetry Decision = iota
	// DecisionFail marks the point FAILED permanently.
	DecisionFail
)

// EscalationPolicy decides what happens to a point after a processing
// failure. A point is retried while its retry count stays at or below
// MaxRetries; one failure past that marks it FAILED for good.
type EscalationPolicy struct {
	MaxRetries  int
	BackoffUnit time.Duration
}

// NewEscalationPolicy builds the policy from configuration.
func NewEscalationPolicy(conf *config.Configuration) EscalationPolicy {
	return EscalationPolicy{
		MaxRetries:  conf.Queue.MaxRetryAttempts,
		BackoffUnit: conf.BackoffUnit(),
	}
}

// Decide evaluates the retry count reached after the current failure.
func (p EscalationPolicy) Decide(retryCount int) Decision {
	if retryCount <= p.MaxRetries {
		return DecisionRetry
	}
	return DecisionFail
}

// Backoff returns the delay before the given retry attempt is redelivered.
// The delay doubles with each attempt: attempts 1, 2, 3 wait 2, 4 and 8
// backoff units.
func (p EscalationPolicy) Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	if retryCount > 30 {
		retryCount = 30
	}
	return time.Duration(1<<uint(retryCount)) * p.BackoffUnit
}
