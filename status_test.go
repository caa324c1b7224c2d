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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geocell-labs/coverage/internal/apierror"
	"github.com/geocell-labs/coverage/model"
)

func TestGetBatchStatusAggregates(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	message := ingestSingle(t, p, validPoint("cell-0"), validPoint("cell-1"), validPoint("cell-2"), validPoint("cell-3"))
	p.store.FailFor["cell-2"] = errors.New("store unavailable")
	require.NoError(t, p.coverage.ProcessBatch(ctx, message))

	status, err := p.coverage.GetBatchStatus(ctx, message.BatchID)
	require.NoError(t, err)
	assert.Equal(t, message.BatchID, status.BatchID)
	assert.Equal(t, 4, status.Stats.Total)
	assert.Equal(t, 3, status.Stats.Completed)
	assert.Equal(t, 1, status.Stats.Retrying)
	assert.Equal(t, 0, status.Stats.Pending)
	assert.Equal(t, 0, status.Stats.Failed)
	require.Len(t, status.Records, 4)
	assert.Equal(t, model.RecordID(message.BatchID, 0), status.Records[0].RecordID)
}

func TestGetBatchStatusUnknownBatch(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.coverage.GetBatchStatus(context.Background(), "batch_nonexistent")
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
	assert.Equal(t, "Batch not found", apiErr.Message)
}

func TestGetBatchStatusServesCachedReads(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	message := ingestSingle(t, p, validPoint("cell-0"))
	require.NoError(t, p.coverage.ProcessBatch(ctx, message))

	first, err := p.coverage.GetBatchStatus(ctx, message.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Stats.Completed)

	// A direct store mutation is not visible until the cached entry ages out.
	require.NoError(t, p.status.CreateRecord(ctx, model.NewPendingRecord(message.BatchID, 1, validPoint("cell-late"), time.Now(), 90*24*time.Hour)))
	second, err := p.coverage.GetBatchStatus(ctx, message.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Stats.Total)
}

func TestGetCellCoverage(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	message := ingestSingle(t, p, validPoint("cell-0"))
	require.NoError(t, p.coverage.ProcessBatch(ctx, message))

	record, err := p.coverage.GetCellCoverage(ctx, "cell-0")
	require.NoError(t, err)
	assert.Equal(t, "cell-0", record.CellID)

	_, err = p.coverage.GetCellCoverage(ctx, "cell-missing")
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestQueryGridCoverage(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	points := []model.CoveragePoint{
		{CellID: "cell-strong", Latitude: 37.1, Longitude: -122.1, SignalStrength: -40},
		{CellID: "cell-weak", Latitude: 37.2, Longitude: -122.2, SignalStrength: -120},
	}
	message := ingestSingle(t, p, points...)
	require.NoError(t, p.coverage.ProcessBatch(ctx, message))

	records, err := p.coverage.QueryGridCoverage(ctx, "37_-123", -90, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "cell-strong", records[0].CellID)

	_, err = p.coverage.QueryGridCoverage(ctx, "37_-123", 0, -90)
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrValidation, apiErr.Code)
}
