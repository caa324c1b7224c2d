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
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/geocell-labs/coverage/config"
	"github.com/geocell-labs/coverage/internal/apierror"
	"github.com/geocell-labs/coverage/model"
)

// BatchReceipt is the acknowledgement returned to a submitter once its batch
// is validated, tracked and enqueued.
type BatchReceipt struct {
	Message     string `json:"message"`
	BatchID     string `json:"batchId"`
	RecordCount int    `json:"recordCount"`
}

// IngestBatch validates a submitted batch, writes a PENDING status record per
// point and hands the batch to the processing queue. Validation is
// all-or-nothing: a single bad point rejects the whole batch before any
// status record or queue write happens.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - batch *model.Batch: The submitted batch.
//
// Returns:
// - *BatchReceipt: The acknowledgement for the accepted batch.
// - error: A validation error for malformed input, or a system error if tracking or enqueueing fails.
func (c *Coverage) IngestBatch(ctx context.Context, batch *model.Batch) (*BatchReceipt, error) {
	ctx, span := tracer.Start(ctx, "Ingesting Coverage Batch")
	defer span.End()
	span.SetAttributes(attribute.String("batch.id", batch.BatchID))

	if err := batch.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrValidation, err.Error(), err)
	}

	conf, err := config.Fetch()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "configuration unavailable", err)
	}

	now := time.Now()
	for i := range batch.Points {
		record := model.NewPendingRecord(batch.BatchID, i, batch.Points[i], now, conf.Retention())
		if err := c.statusStore.CreateRecord(ctx, record); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to track batch records", err)
		}
	}

	message := batch.ToMessage(conf.Store.CoveragePrefix, conf.Queue.RetryQueue)
	if err := c.queue.EnqueueBatch(ctx, message); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to enqueue batch", err)
	}

	return &BatchReceipt{
		Message:     "Batch accepted for processing",
		BatchID:     batch.BatchID,
		RecordCount: len(batch.Points),
	}, nil
}
