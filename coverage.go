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
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/geocell-labs/coverage/cache"
	"github.com/geocell-labs/coverage/config"
	redis_db "github.com/geocell-labs/coverage/internal/redis-db"
	"github.com/geocell-labs/coverage/model"
	"github.com/geocell-labs/coverage/store"
)

var tracer = otel.Tracer("coverage.pipeline")

// TaskQueue is the transport the pipeline publishes work to. The production
// implementation is the asynq-backed Queue; tests swap in a capture fake.
type TaskQueue interface {
	EnqueueBatch(ctx context.Context, message *model.BatchMessage) error
	EnqueueRetry(ctx context.Context, message *model.RetryMessage, delay time.Duration) error
}

// Coverage wires the ingestion pipeline together: validation, the task
// queue, the status and coverage stores, the stats cache and the retry
// escalation policy.
type Coverage struct {
	queue         TaskQueue
	statusStore   store.StatusStore
	coverageStore store.CoverageStore
	cache         cache.Cache
	policy        EscalationPolicy
}

// NewCoverage initializes a new Coverage instance from the loaded
// configuration. It connects Redis, builds the stores, the queue and the
// stats cache.
//
// Returns:
// - *Coverage: A pointer to the newly created Coverage instance.
// - error: An error if any of the initialization steps fail.
func NewCoverage() (*Coverage, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newCache, err := cache.NewCache()
	if err != nil {
		return nil, err
	}
	client := redisClient.Client()
	return &Coverage{
		queue:         NewQueue(configuration),
		statusStore:   store.NewRedisStatusStore(client, configuration.Store.StatusPrefix),
		coverageStore: store.NewRedisCoverageStore(client, configuration.Store.CoveragePrefix),
		cache:         newCache,
		policy:        NewEscalationPolicy(configuration),
	}, nil
}

// NewCoverageWithDeps builds a Coverage instance from explicit dependencies.
func NewCoverageWithDeps(queue TaskQueue, statusStore store.StatusStore, coverageStore store.CoverageStore, ca cache.Cache, policy EscalationPolicy) *Coverage {
	return &Coverage{
		queue:         queue,
		statusStore:   statusStore,
		coverageStore: coverageStore,
		cache:         ca,
		policy:        policy,
	}
}

// CoverageStore exposes the underlying coverage store, used by the snapshot
// export command.
func (c *Coverage) CoverageStore() store.CoverageStore {
	return c.coverageStore
}
