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

package model

import (
	"fmt"
)

// MaxBatchSize bounds how many points a single submission may carry.
const MaxBatchSize = 1000

// BatchMetadata is opaque client context passed through to coverage rows.
type BatchMetadata struct {
	Source   string `json:"source,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

// Batch is one client submission: a server-generated id plus an ordered
// sequence of coverage points sharing it.
type Batch struct {
	BatchID  string          `json:"batch_id"`
	Points   []CoveragePoint `json:"points"`
	Metadata BatchMetadata   `json:"metadata"`
}

// NewBatch wraps a set of submitted points with a fresh batch id.
func NewBatch(points []CoveragePoint, metadata BatchMetadata) *Batch {
	return &Batch{
		BatchID:  GenerateUUIDWithSuffix("batch"),
		Points:   points,
		Metadata: metadata,
	}
}

// Validate checks the submission contract: a non-empty points sequence of at
// most MaxBatchSize, every point individually valid. The first offending
// point fails the whole batch with its index in the message, and no side
// effects happen before validation passes.
func (b *Batch) Validate() error {
	if len(b.Points) == 0 {
		return fmt.Errorf("request must include non-empty points array")
	}
	if len(b.Points) > MaxBatchSize {
		return fmt.Errorf("batch size cannot exceed %d points", MaxBatchSize)
	}
	for i := range b.Points {
		if err := b.Points[i].Validate(); err != nil {
			return fmt.Errorf("point at index %d is invalid: %v", i, err)
		}
	}
	return nil
}

// MessageMetadata is the batch metadata enriched with the routing details a
// consumer needs: which store the points land in and where retries go.
type MessageMetadata struct {
	BatchMetadata
	CoverageTable string `json:"coverage_table"`
	RetryQueue    string `json:"retry_queue"`
}

// BatchMessage is the queue payload from the validator (or a retry
// re-enqueue) to the processor. RecordIDs is aligned with Points so that
// status record identity survives the retry loop; a single-point retry
// re-enqueue carries exactly one of each.
type BatchMessage struct {
	BatchID   string          `json:"batchId"`
	Points    []CoveragePoint `json:"points"`
	RecordIDs []string        `json:"recordIds"`
	Metadata  MessageMetadata `json:"metadata"`
}

// RecordID returns the status record id for the i-th point of the message,
// falling back to the positional derivation for messages enqueued without
// explicit ids.
func (m *BatchMessage) RecordID(i int) string {
	if i < len(m.RecordIDs) {
		return m.RecordIDs[i]
	}
	return RecordID(m.BatchID, i)
}

// ToMessage converts a validated batch into its queue payload.
func (b *Batch) ToMessage(coverageTable, retryQueue string) *BatchMessage {
	recordIDs := make([]string, len(b.Points))
	for i := range b.Points {
		recordIDs[i] = RecordID(b.BatchID, i)
	}
	return &BatchMessage{
		BatchID:   b.BatchID,
		Points:    b.Points,
		RecordIDs: recordIDs,
		Metadata: MessageMetadata{
			BatchMetadata: b.Metadata,
			CoverageTable: coverageTable,
			RetryQueue:    retryQueue,
		},
	}
}

// RetryMessage is the queue payload from the processor to the retry
// scheduler: a single failed point with its record identity and the retry
// count already incremented by the processor.
type RetryMessage struct {
	BatchID    string          `json:"batchId"`
	RecordID   string          `json:"recordId"`
	Point      CoveragePoint   `json:"point"`
	Metadata   MessageMetadata `json:"metadata"`
	RetryCount int             `json:"retryCount"`
}

// ToBatchMessage wraps the retried point back into the batch-message shape
// consumed by the processor.
func (m *RetryMessage) ToBatchMessage() *BatchMessage {
	return &BatchMessage{
		BatchID:   m.BatchID,
		Points:    []CoveragePoint{m.Point},
		RecordIDs: []string{m.RecordID},
		Metadata:  m.Metadata,
	}
}
