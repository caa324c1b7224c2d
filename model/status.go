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
	"errors"
	"time"
)

// Status is the processing state of a single point within a batch.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRetrying  Status = "RETRYING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether the status may never be overwritten again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StatusRecord tracks one point of one batch through the pipeline. Records
// are keyed by (batch_id, record_id), created PENDING by the validator and
// mutated by the processor and retry scheduler until a terminal state is
// reached; they expire via TTL rather than being deleted.
type StatusRecord struct {
	BatchID    string        `json:"batch_id"`
	RecordID   string        `json:"record_id"`
	Status     Status        `json:"status"`
	RetryCount int           `json:"retry_count"`
	Error      string        `json:"error,omitempty"`
	UpdatedAt  string        `json:"updated_at"`
	LastRetry  string        `json:"last_retry,omitempty"`
	TTL        int64         `json:"ttl"`
	Point      CoveragePoint `json:"point"`
}

// NewPendingRecord builds the initial status row written by the validator
// before a batch is enqueued.
func NewPendingRecord(batchID string, index int, point CoveragePoint, now time.Time, retention time.Duration) *StatusRecord {
	return &StatusRecord{
		BatchID:   batchID,
		RecordID:  RecordID(batchID, index),
		Status:    StatusPending,
		UpdatedAt: now.UTC().Format(time.RFC3339),
		TTL:       now.Add(retention).Unix(),
		Point:     point,
	}
}

// StatusUpdate is the closed set of mutations a consumer may apply to a
// status record. Every variant is validated before it becomes a store update
// expression, and the store refuses to apply any of them over a terminal
// state.
type StatusUpdate interface {
	// Status returns the state the record transitions to.
	Status() Status
	// Validate rejects malformed transitions before they reach the store.
	Validate() error
}

// MarkCompleted transitions a record to COMPLETED. Idempotent: it overwrites
// a prior RETRYING state but is refused over FAILED.
type MarkCompleted struct{}

func (MarkCompleted) Status() Status  { return StatusCompleted }
func (MarkCompleted) Validate() error { return nil }

// MarkRetrying transitions a record to RETRYING with the attempt count and
// the error that triggered it. LastRetry is set by the retry scheduler only;
// the processor leaves it zero.
type MarkRetrying struct {
	RetryCount int
	Error      string
	LastRetry  time.Time
}

func (MarkRetrying) Status() Status { return StatusRetrying }

func (u MarkRetrying) Validate() error {
	if u.RetryCount < 1 {
		return errors.New("retrying transition requires a positive retry count")
	}
	return nil
}

// MarkFailed transitions a record to its terminal FAILED state.
type MarkFailed struct {
	RetryCount int
	Error      string
}

func (MarkFailed) Status() Status { return StatusFailed }

func (u MarkFailed) Validate() error {
	if u.Error == "" {
		return errors.New("failed transition requires an error")
	}
	return nil
}

// BatchStats aggregates the records of one batch by state.
type BatchStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Retrying  int `json:"retrying"`
}

// BatchStatus is the read-path view over a batch: per-state counts plus the
// raw records.
type BatchStatus struct {
	BatchID string         `json:"batchId"`
	Stats   BatchStats     `json:"stats"`
	Records []StatusRecord `json:"records"`
}

// AggregateStatus buckets a batch's records by state.
func AggregateStatus(batchID string, records []StatusRecord) *BatchStatus {
	stats := BatchStats{Total: len(records)}
	for i := range records {
		switch records[i].Status {
		case StatusPending:
			stats.Pending++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		case StatusRetrying:
			stats.Retrying++
		}
	}
	return &BatchStatus{BatchID: batchID, Stats: stats, Records: records}
}
