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

// Package store holds the durable keyed storage the pipeline reads and
// writes: per-point status records and accepted coverage rows. Both stores
// are external collaborators; consumers depend on the interfaces here and
// receive concrete implementations by injection.
package store

import (
	"context"
	"errors"

	"github.com/geocell-labs/coverage/model"
)

var (
	// ErrRecordNotFound is returned when a keyed read or update misses.
	ErrRecordNotFound = errors.New("store: record not found")

	// ErrTerminalState is returned when an update is refused because the
	// record already reached COMPLETED or FAILED. Terminal states are never
	// overwritten, so stale duplicate deliveries surface as this error and
	// can be dropped by the caller.
	ErrTerminalState = errors.New("store: record is in a terminal state")
)

// StatusStore is durable keyed storage for per-point processing status.
// Every mutation must be safe to apply twice with the same input: delivery
// is at-least-once and multiple consumers may race on the same record.
type StatusStore interface {
	// CreateRecord persists the initial PENDING row for one point.
	// Recreating an existing record is an idempotent overwrite.
	CreateRecord(ctx context.Context, record *model.StatusRecord) error

	// UpdateRecord applies one of the closed status transitions. It returns
	// ErrTerminalState when the record is already terminal and
	// ErrRecordNotFound when it does not exist.
	UpdateRecord(ctx context.Context, batchID, recordID string, update model.StatusUpdate) error

	// IncrementRetryCount atomically bumps the record's retry counter and
	// returns the new value. The counter never decreases; terminal records
	// refuse the increment with ErrTerminalState.
	IncrementRetryCount(ctx context.Context, batchID, recordID string) (int, error)

	// GetBatchRecords range-reads every status record sharing the batch id.
	// A missing batch yields an empty slice, not an error.
	GetBatchRecords(ctx context.Context, batchID string) ([]model.StatusRecord, error)
}

// CoverageStore is durable keyed storage for accepted coverage points,
// keyed by cell_id with a grid_id + signal_strength secondary access path.
type CoverageStore interface {
	// UpsertRecord writes a coverage row keyed by its cell id. Re-applying
	// the same record leaves the store unchanged.
	UpsertRecord(ctx context.Context, record *model.CoverageRecord) error

	// GetCell reads one coverage row by cell id.
	GetCell(ctx context.Context, cellID string) (*model.CoverageRecord, error)

	// QueryGrid returns the rows in a spatial bucket whose signal strength
	// falls within [minSignal, maxSignal].
	QueryGrid(ctx context.Context, gridID string, minSignal, maxSignal float64) ([]model.CoverageRecord, error)

	// ScanAll iterates every coverage row, for snapshot exports.
	ScanAll(ctx context.Context) ([]model.CoverageRecord, error)
}
