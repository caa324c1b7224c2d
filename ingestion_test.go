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
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geocell-labs/coverage/config"
	"github.com/geocell-labs/coverage/internal/apierror"
	"github.com/geocell-labs/coverage/model"
)

type testPipeline struct {
	coverage *Coverage
	queue    *MockQueue
	status   *MockStatusStore
	store    *MockCoverageStore
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()
	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: "localhost:6379"},
	})

	queue := &MockQueue{}
	status := NewMockStatusStore()
	coverageStore := NewMockCoverageStore()
	policy := EscalationPolicy{MaxRetries: 3, BackoffUnit: time.Second}

	return &testPipeline{
		coverage: NewCoverageWithDeps(queue, status, coverageStore, NewMockCache(), policy),
		queue:    queue,
		status:   status,
		store:    coverageStore,
	}
}

func validPoint(cellID string) model.CoveragePoint {
	return model.CoveragePoint{
		CellID:         cellID,
		Latitude:       gofakeit.Float64Range(-89, 89),
		Longitude:      gofakeit.Float64Range(-179, 179),
		SignalStrength: gofakeit.Float64Range(-149, -1),
		Accuracy:       gofakeit.Float64Range(1, 50),
	}
}

func TestIngestBatchAcceptsValidBatch(t *testing.T) {
	p := newTestPipeline(t)

	batch := model.NewBatch([]model.CoveragePoint{
		validPoint("cell-0"), validPoint("cell-1"), validPoint("cell-2"),
	}, model.BatchMetadata{Source: "drive-test"})

	receipt, err := p.coverage.IngestBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, "Batch accepted for processing", receipt.Message)
	assert.Equal(t, batch.BatchID, receipt.BatchID)
	assert.Equal(t, 3, receipt.RecordCount)

	// Every point is tracked PENDING with retry count zero before processing.
	records, err := p.status.GetBatchRecords(context.Background(), batch.BatchID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, record := range records {
		assert.Equal(t, model.RecordID(batch.BatchID, i), record.RecordID)
		assert.Equal(t, model.StatusPending, record.Status)
		assert.Equal(t, 0, record.RetryCount)
	}

	// One batch message carrying routing metadata and record ids.
	require.Len(t, p.queue.Batches, 1)
	message := p.queue.Batches[0]
	assert.Equal(t, batch.BatchID, message.BatchID)
	assert.Len(t, message.Points, 3)
	assert.Len(t, message.RecordIDs, 3)
	assert.Equal(t, "coverage", message.Metadata.CoverageTable)
	assert.Equal(t, "retry_queue", message.Metadata.RetryQueue)
	assert.Equal(t, "drive-test", message.Metadata.Source)
}

func TestBatchIDsAreUnique(t *testing.T) {
	first := model.NewBatch([]model.CoveragePoint{validPoint("cell-0")}, model.BatchMetadata{})
	second := model.NewBatch([]model.CoveragePoint{validPoint("cell-0")}, model.BatchMetadata{})
	assert.NotEqual(t, first.BatchID, second.BatchID)
}

func TestIngestBatchRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name    string
		points  []model.CoveragePoint
		wantMsg string
	}{
		{
			name:    "empty batch",
			points:  nil,
			wantMsg: "non-empty points array",
		},
		{
			name: "oversized batch",
			points: func() []model.CoveragePoint {
				points := make([]model.CoveragePoint, model.MaxBatchSize+1)
				for i := range points {
					points[i] = validPoint(fmt.Sprintf("cell-%d", i))
				}
				return points
			}(),
			wantMsg: "batch size cannot exceed 1000 points",
		},
		{
			name: "invalid point index reported",
			points: []model.CoveragePoint{
				validPoint("cell-0"),
				validPoint("cell-1"),
				{CellID: "cell-2", Latitude: 91, Longitude: 0, SignalStrength: -60},
			},
			wantMsg: "point at index 2 is invalid",
		},
		{
			name: "missing cell id",
			points: []model.CoveragePoint{
				{Latitude: 10, Longitude: 10, SignalStrength: -60},
			},
			wantMsg: "missing cell_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(t)
			batch := model.NewBatch(tt.points, model.BatchMetadata{})

			_, err := p.coverage.IngestBatch(context.Background(), batch)
			require.Error(t, err)
			apiErr, ok := err.(apierror.APIError)
			require.True(t, ok)
			assert.Equal(t, apierror.ErrValidation, apiErr.Code)
			assert.Contains(t, apiErr.Message, tt.wantMsg)

			// Rejection happens before any tracking or queue write.
			records, _ := p.status.GetBatchRecords(context.Background(), batch.BatchID)
			assert.Empty(t, records)
			assert.Empty(t, p.queue.Batches)
		})
	}
}

func TestIngestBatchEnqueueFailure(t *testing.T) {
	p := newTestPipeline(t)
	p.queue.FailEnqueueBatch = errors.New("broker down")

	batch := model.NewBatch([]model.CoveragePoint{validPoint("cell-0")}, model.BatchMetadata{})
	_, err := p.coverage.IngestBatch(context.Background(), batch)
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
}
