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

	"go.opentelemetry.io/otel/attribute"

	"github.com/geocell-labs/coverage/internal/apierror"
	"github.com/geocell-labs/coverage/model"
)

// statusCacheTTL bounds how stale a batch status read may be. The status of
// an in-flight batch changes every few seconds, so the cache only absorbs
// burst polling.
const statusCacheTTL = 5 * time.Second

func batchStatusCacheKey(batchID string) string {
	return fmt.Sprintf("batch:%s:status", batchID)
}

// GetBatchStatus returns the per-state counts and records for one batch.
// Batches are tracked until their records' TTL passes; an unknown or expired
// batch id reads as not found.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - batchID string: The batch to look up.
//
// Returns:
// - *model.BatchStatus: The aggregated view of the batch.
// - error: A not-found error for unknown batches, or a system error on store failure.
func (c *Coverage) GetBatchStatus(ctx context.Context, batchID string) (*model.BatchStatus, error) {
	ctx, span := tracer.Start(ctx, "Querying Batch Status")
	defer span.End()
	span.SetAttributes(attribute.String("batch.id", batchID))

	var cached model.BatchStatus
	if err := c.cache.Get(ctx, batchStatusCacheKey(batchID), &cached); err == nil && cached.BatchID == batchID {
		return &cached, nil
	}

	records, err := c.statusStore.GetBatchRecords(ctx, batchID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to read batch records", err)
	}
	if len(records) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Batch not found", nil)
	}

	status := model.AggregateStatus(batchID, records)
	if err := c.cache.Set(ctx, batchStatusCacheKey(batchID), status, statusCacheTTL); err != nil {
		span.RecordError(err)
	}
	return status, nil
}
