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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/geocell-labs/coverage/config"
)

func TestEscalationDecide(t *testing.T) {
	policy := EscalationPolicy{MaxRetries: 3, BackoffUnit: time.Second}

	assert.Equal(t, DecisionRetry, policy.Decide(1))
	assert.Equal(t, DecisionRetry, policy.Decide(2))
	assert.Equal(t, DecisionRetry, policy.Decide(3))
	assert.Equal(t, DecisionFail, policy.Decide(4))
	assert.Equal(t, DecisionFail, policy.Decide(10))
}

func TestEscalationBackoffDoubles(t *testing.T) {
	policy := EscalationPolicy{MaxRetries: 3, BackoffUnit: time.Second}

	assert.Equal(t, 2*time.Second, policy.Backoff(1))
	assert.Equal(t, 4*time.Second, policy.Backoff(2))
	assert.Equal(t, 8*time.Second, policy.Backoff(3))

	// Degenerate counts stay sane.
	assert.Equal(t, 2*time.Second, policy.Backoff(0))
	assert.Equal(t, time.Duration(1<<30)*time.Second, policy.Backoff(64))
}

func TestNewEscalationPolicyFromConfig(t *testing.T) {
	cnf := &config.Configuration{
		Redis: config.RedisConfig{Dns: "localhost:6379"},
	}
	config.MockConfig(cnf)

	policy := NewEscalationPolicy(cnf)
	assert.Equal(t, 3, policy.MaxRetries)
	assert.Equal(t, time.Second, policy.BackoffUnit)
}
