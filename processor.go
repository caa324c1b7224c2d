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
	"log"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/geocell-labs/coverage/config"
	"github.com/geocell-labs/coverage/internal/notification"
	"github.com/geocell-labs/coverage/model"
	"github.com/geocell-labs/coverage/store"
)

// ProcessBatch consumes one batch message from the queue: every point is
// upserted into the coverage store and its status record resolved. A failing
// point never aborts its siblings; it is escalated individually through the
// retry policy. Bookkeeping failures (status or queue writes that could not
// be applied) are returned so the transport redelivers the message; the
// idempotent upserts and sticky terminal states make redelivery safe.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - message *model.BatchMessage: The batch message to process.
//
// Returns:
// - error: The first bookkeeping error encountered, or nil.
func (c *Coverage) ProcessBatch(ctx context.Context, message *model.BatchMessage) error {
	ctx, span := tracer.Start(ctx, "Processing Coverage Batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.id", message.BatchID),
		attribute.Int("batch.points", len(message.Points)),
	)

	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	var firstErr error
	for i := range message.Points {
		recordID := message.RecordID(i)
		if err := c.processPoint(ctx, message.Points[i], message.Metadata, conf.Retention()); err != nil {
			log.Printf(" [*] Point %s failed, escalating: %v", recordID, err)
			if bookkeepErr := c.escalatePoint(ctx, message, i, err); bookkeepErr != nil && firstErr == nil {
				firstErr = bookkeepErr
			}
			continue
		}
		if err := c.markCompleted(ctx, message.BatchID, recordID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// processPoint upserts one point into the coverage store. The write is keyed
// by cell id, so reprocessing after a retry replaces the row in place.
func (c *Coverage) processPoint(ctx context.Context, point model.CoveragePoint, metadata model.MessageMetadata, retention time.Duration) error {
	record := model.NewCoverageRecord(point, metadata.BatchMetadata, time.Now(), retention)
	return c.coverageStore.UpsertRecord(ctx, record)
}

// markCompleted resolves a status record after a successful upsert. A record
// already FAILED by a concurrent escalation keeps its terminal state.
func (c *Coverage) markCompleted(ctx context.Context, batchID, recordID string) error {
	err := c.statusStore.UpdateRecord(ctx, batchID, recordID, model.MarkCompleted{})
	if errors.Is(err, store.ErrTerminalState) {
		return nil
	}
	return err
}

// escalatePoint runs the retry policy for one failed point. The retry count
// is bumped atomically first; the count reached by this failure decides
// whether the point is re-enqueued with backoff or marked FAILED for good.
func (c *Coverage) escalatePoint(ctx context.Context, message *model.BatchMessage, index int, cause error) error {
	recordID := message.RecordID(index)

	newCount, err := c.statusStore.IncrementRetryCount(ctx, message.BatchID, recordID)
	if errors.Is(err, store.ErrTerminalState) {
		// A concurrent delivery already resolved the record.
		return nil
	}
	if errors.Is(err, store.ErrRecordNotFound) {
		log.Printf(" [*] No status record for %s, dropping point", recordID)
		return nil
	}
	if err != nil {
		return err
	}

	if c.policy.Decide(newCount) == DecisionRetry {
		if err := c.statusStore.UpdateRecord(ctx, message.BatchID, recordID, model.MarkRetrying{
			RetryCount: newCount,
			Error:      cause.Error(),
		}); err != nil && !errors.Is(err, store.ErrTerminalState) {
			return err
		}
		retry := &model.RetryMessage{
			BatchID:    message.BatchID,
			RecordID:   recordID,
			Point:      message.Points[index],
			Metadata:   message.Metadata,
			RetryCount: newCount,
		}
		if err := c.queue.EnqueueRetry(ctx, retry, c.policy.Backoff(newCount)); err != nil {
			// The point cannot re-enter the pipeline; fail it rather than
			// leave it stuck in RETRYING forever.
			failErr := c.statusStore.UpdateRecord(ctx, message.BatchID, recordID, model.MarkFailed{
				RetryCount: newCount,
				Error:      fmt.Sprintf("retry enqueue failed: %v", err),
			})
			if failErr != nil && !errors.Is(failErr, store.ErrTerminalState) {
				return failErr
			}
			notification.NotifyError(fmt.Errorf("record %s could not be re-enqueued: %v", recordID, err))
			return err
		}
		return nil
	}

	failure := fmt.Sprintf("max retries exceeded: %v", cause)
	if err := c.statusStore.UpdateRecord(ctx, message.BatchID, recordID, model.MarkFailed{
		RetryCount: newCount,
		Error:      failure,
	}); err != nil && !errors.Is(err, store.ErrTerminalState) {
		return err
	}
	notification.NotifyError(fmt.Errorf("record %s exhausted retries: %v", recordID, cause))
	return nil
}
