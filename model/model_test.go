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
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPoint() CoveragePoint {
	return CoveragePoint{
		CellID:         gofakeit.UUID(),
		Latitude:       37.7749,
		Longitude:      -122.4194,
		SignalStrength: -60,
	}
}

func TestGridID(t *testing.T) {
	tests := []struct {
		lat, lon float64
		expected string
	}{
		{37.7749, -122.4194, "37_-123"},
		{0, 0, "0_0"},
		{-0.5, -0.5, "-1_-1"},
		{-90, -180, "-90_-180"},
		{89.999, 179.999, "89_179"},
	}

	for _, tt := range tests {
		p := CoveragePoint{Latitude: tt.lat, Longitude: tt.lon}
		assert.Equal(t, tt.expected, p.GridID())
	}
}

func TestValidatePoint(t *testing.T) {
	p := validPoint()
	assert.NoError(t, p.Validate())

	missingCell := validPoint()
	missingCell.CellID = ""
	assert.Error(t, missingCell.Validate())

	badLatitude := validPoint()
	badLatitude.Latitude = 91
	assert.Error(t, badLatitude.Validate())

	badLongitude := validPoint()
	badLongitude.Longitude = -180.5
	assert.Error(t, badLongitude.Validate())

	badSignal := validPoint()
	badSignal.SignalStrength = 10
	assert.Error(t, badSignal.Validate())

	badAccuracy := validPoint()
	badAccuracy.Accuracy = -1
	assert.Error(t, badAccuracy.Validate())

	badTimestamp := validPoint()
	badTimestamp.Timestamp = "not-a-date"
	assert.Error(t, badTimestamp.Validate())

	withTimestamp := validPoint()
	withTimestamp.Timestamp = "2025-06-01T10:00:00Z"
	assert.NoError(t, withTimestamp.Validate())
}

func TestValidateBatch(t *testing.T) {
	batch := NewBatch([]CoveragePoint{validPoint()}, BatchMetadata{Source: "drive-test"})
	assert.NoError(t, batch.Validate())
	assert.True(t, strings.HasPrefix(batch.BatchID, "batch_"))

	empty := NewBatch(nil, BatchMetadata{})
	assert.Error(t, empty.Validate())

	oversized := make([]CoveragePoint, MaxBatchSize+1)
	for i := range oversized {
		oversized[i] = validPoint()
	}
	assert.Error(t, NewBatch(oversized, BatchMetadata{}).Validate())

	points := []CoveragePoint{validPoint(), validPoint(), validPoint()}
	points[2].Latitude = 120
	err := NewBatch(points, BatchMetadata{}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 2")
}

func TestNewCoverageRecordDefaults(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := NewCoverageRecord(validPoint(), BatchMetadata{Campaign: "q2"}, now, 90*24*time.Hour)

	assert.Equal(t, "37_-123", rec.GridID)
	assert.Equal(t, 1.0, rec.Accuracy)
	assert.Equal(t, now.Format(time.RFC3339), rec.Timestamp)
	assert.Equal(t, now.Add(90*24*time.Hour).Unix(), rec.TTL)
	assert.Equal(t, "q2", rec.Metadata.Campaign)

	// A client-supplied timestamp survives the write untouched.
	p := validPoint()
	p.Timestamp = "2025-05-30T08:00:00Z"
	rec = NewCoverageRecord(p, BatchMetadata{}, now, time.Hour)
	assert.Equal(t, "2025-05-30T08:00:00Z", rec.Timestamp)
}

func TestBatchMessageRecordIDs(t *testing.T) {
	batch := NewBatch([]CoveragePoint{validPoint(), validPoint()}, BatchMetadata{})
	msg := batch.ToMessage("coverage", "retry_queue")

	require.Len(t, msg.RecordIDs, 2)
	assert.Equal(t, fmt.Sprintf("%s-0", batch.BatchID), msg.RecordID(0))
	assert.Equal(t, fmt.Sprintf("%s-1", batch.BatchID), msg.RecordID(1))
	assert.Equal(t, "coverage", msg.Metadata.CoverageTable)
	assert.Equal(t, "retry_queue", msg.Metadata.RetryQueue)

	// Messages without explicit ids fall back to positional derivation.
	legacy := &BatchMessage{BatchID: "batch_x", Points: []CoveragePoint{validPoint()}}
	assert.Equal(t, "batch_x-0", legacy.RecordID(0))
}

func TestRetryMessageRoundTrip(t *testing.T) {
	point := validPoint()
	retry := &RetryMessage{
		BatchID:    "batch_1",
		RecordID:   "batch_1-4",
		Point:      point,
		RetryCount: 2,
	}

	msg := retry.ToBatchMessage()
	require.Len(t, msg.Points, 1)
	assert.Equal(t, point.CellID, msg.Points[0].CellID)
	assert.Equal(t, "batch_1-4", msg.RecordID(0))
}

func TestStatusUpdateValidation(t *testing.T) {
	assert.NoError(t, MarkCompleted{}.Validate())
	assert.Error(t, MarkRetrying{RetryCount: 0}.Validate())
	assert.NoError(t, MarkRetrying{RetryCount: 1, Error: "store unavailable"}.Validate())
	assert.Error(t, MarkFailed{RetryCount: 4}.Validate())
	assert.NoError(t, MarkFailed{RetryCount: 4, Error: "max retries exceeded"}.Validate())
}

func TestAggregateStatus(t *testing.T) {
	records := []StatusRecord{
		{Status: StatusPending},
		{Status: StatusCompleted},
		{Status: StatusCompleted},
		{Status: StatusFailed},
		{Status: StatusRetrying},
	}

	status := AggregateStatus("batch_1", records)
	assert.Equal(t, 5, status.Stats.Total)
	assert.Equal(t, 1, status.Stats.Pending)
	assert.Equal(t, 2, status.Stats.Completed)
	assert.Equal(t, 1, status.Stats.Failed)
	assert.Equal(t, 1, status.Stats.Retrying)
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRetrying.Terminal())
}
