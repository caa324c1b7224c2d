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

	"github.com/geocell-labs/coverage/internal/notification"
	"github.com/geocell-labs/coverage/model"
	"github.com/geocell-labs/coverage/store"
)

// ProcessRetry consumes one retry message once its backoff delay has
// elapsed. The record's last-retry timestamp is stamped and the point is
// re-enqueued as a single-point batch onto the processing queue with no
// extra delay, where another failure escalates it again. A point that
// cannot re-enter the pipeline is failed terminally.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - message *model.RetryMessage: The retry message to process.
//
// Returns:
// - error: A bookkeeping error, or nil.
func (c *Coverage) ProcessRetry(ctx context.Context, message *model.RetryMessage) error {
	ctx, span := tracer.Start(ctx, "Processing Coverage Retry")
	defer span.End()
	span.SetAttributes(
		attribute.String("record.id", message.RecordID),
		attribute.Int("retry.count", message.RetryCount),
	)

	err := c.statusStore.UpdateRecord(ctx, message.BatchID, message.RecordID, model.MarkRetrying{
		RetryCount: message.RetryCount,
		LastRetry:  time.Now(),
	})
	if errors.Is(err, store.ErrTerminalState) {
		// A duplicate delivery raced a terminal resolution; drop it.
		log.Printf(" [*] Record %s already resolved, skipping retry", message.RecordID)
		return nil
	}
	if errors.Is(err, store.ErrRecordNotFound) {
		log.Printf(" [*] No status record for %s, dropping retry", message.RecordID)
		return nil
	}
	if err != nil {
		return err
	}

	if err := c.queue.EnqueueBatch(ctx, message.ToBatchMessage()); err != nil {
		// The point cannot re-enter the pipeline; fail it rather than
		// leave it stuck in RETRYING forever.
		failErr := c.statusStore.UpdateRecord(ctx, message.BatchID, message.RecordID, model.MarkFailed{
			RetryCount: message.RetryCount,
			Error:      fmt.Sprintf("re-enqueue failed: %v", err),
		})
		if failErr != nil && !errors.Is(failErr, store.ErrTerminalState) {
			return failErr
		}
		notification.NotifyError(fmt.Errorf("record %s could not be re-enqueued: %v", message.RecordID, err))
		return err
	}

	log.Printf(" [*] Re-enqueued record %s for attempt %d", message.RecordID, message.RetryCount)
	return nil
}
