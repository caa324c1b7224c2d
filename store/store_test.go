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

package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geocell-labs/coverage/model"
)

func newTestStores(t *testing.T) (*RedisStatusStore, *RedisCoverageStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStatusStore(client, "status"), NewRedisCoverageStore(client, "coverage")
}

func pendingRecord(batchID string, index int) *model.StatusRecord {
	point := model.CoveragePoint{
		CellID:         "cell-1",
		Latitude:       37.7,
		Longitude:      -122.4,
		SignalStrength: -60,
	}
	return model.NewPendingRecord(batchID, index, point, time.Now(), 90*24*time.Hour)
}

func TestStatusStoreCreateAndRead(t *testing.T) {
	statusStore, _ := newTestStores(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, statusStore.CreateRecord(ctx, pendingRecord("batch_1", i)))
	}

	records, err := statusStore.GetBatchRecords(ctx, "batch_1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, record := range records {
		assert.Equal(t, model.RecordID("batch_1", i), record.RecordID)
		assert.Equal(t, model.StatusPending, record.Status)
		assert.Equal(t, 0, record.RetryCount)
		assert.Equal(t, "cell-1", record.Point.CellID)
	}

	// Unknown batches read as empty, not as an error.
	records, err = statusStore.GetBatchRecords(ctx, "batch_unknown")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStatusStoreTransitions(t *testing.T) {
	statusStore, _ := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, statusStore.CreateRecord(ctx, pendingRecord("batch_1", 0)))
	recordID := model.RecordID("batch_1", 0)

	err := statusStore.UpdateRecord(ctx, "batch_1", recordID, model.MarkRetrying{
		RetryCount: 1,
		Error:      "store unavailable",
	})
	require.NoError(t, err)

	records, err := statusStore.GetBatchRecords(ctx, "batch_1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRetrying, records[0].Status)
	assert.Equal(t, 1, records[0].RetryCount)
	assert.Equal(t, "store unavailable", records[0].Error)

	// RETRYING is overwritten by the terminal COMPLETED.
	require.NoError(t, statusStore.UpdateRecord(ctx, "batch_1", recordID, model.MarkCompleted{}))

	// Terminal states are sticky against any later transition.
	err = statusStore.UpdateRecord(ctx, "batch_1", recordID, model.MarkRetrying{RetryCount: 2, Error: "late retry"})
	assert.ErrorIs(t, err, ErrTerminalState)
	err = statusStore.UpdateRecord(ctx, "batch_1", recordID, model.MarkFailed{RetryCount: 2, Error: "late failure"})
	assert.ErrorIs(t, err, ErrTerminalState)

	records, err = statusStore.GetBatchRecords(ctx, "batch_1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, records[0].Status)
}

func TestRetryCountNeverRegresses(t *testing.T) {
	statusStore, _ := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, statusStore.CreateRecord(ctx, pendingRecord("batch_1", 0)))
	recordID := model.RecordID("batch_1", 0)

	require.NoError(t, statusStore.UpdateRecord(ctx, "batch_1", recordID, model.MarkRetrying{
		RetryCount: 2,
		Error:      "store unavailable",
	}))

	// A duplicate delivery of the first retry message carries the older
	// count; the write is accepted but the counter stands.
	require.NoError(t, statusStore.UpdateRecord(ctx, "batch_1", recordID, model.MarkRetrying{
		RetryCount: 1,
		Error:      "store unavailable",
		LastRetry:  time.Now(),
	}))

	records, err := statusStore.GetBatchRecords(ctx, "batch_1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRetrying, records[0].Status)
	assert.Equal(t, 2, records[0].RetryCount)
	assert.NotEmpty(t, records[0].LastRetry)

	// The same guard holds for the failed transition.
	require.NoError(t, statusStore.UpdateRecord(ctx, "batch_1", recordID, model.MarkFailed{
		RetryCount: 1,
		Error:      "re-enqueue failed",
	}))
	records, err = statusStore.GetBatchRecords(ctx, "batch_1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, records[0].Status)
	assert.Equal(t, 2, records[0].RetryCount)
}

func TestStatusStoreUpdateMissingRecord(t *testing.T) {
	statusStore, _ := newTestStores(t)

	err := statusStore.UpdateRecord(context.Background(), "batch_x", "batch_x-0", model.MarkCompleted{})
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestIncrementRetryCount(t *testing.T) {
	statusStore, _ := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, statusStore.CreateRecord(ctx, pendingRecord("batch_1", 0)))
	recordID := model.RecordID("batch_1", 0)

	for want := 1; want <= 4; want++ {
		got, err := statusStore.IncrementRetryCount(ctx, "batch_1", recordID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	require.NoError(t, statusStore.UpdateRecord(ctx, "batch_1", recordID, model.MarkFailed{RetryCount: 4, Error: "max retries exceeded"}))

	_, err := statusStore.IncrementRetryCount(ctx, "batch_1", recordID)
	assert.ErrorIs(t, err, ErrTerminalState)

	_, err = statusStore.IncrementRetryCount(ctx, "batch_1", "batch_1-99")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestStatusRecordsExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	statusStore := NewRedisStatusStore(client, "status")
	ctx := context.Background()

	record := pendingRecord("batch_1", 0)
	record.TTL = time.Now().Add(time.Hour).Unix()
	require.NoError(t, statusStore.CreateRecord(ctx, record))

	mr.FastForward(2 * time.Hour)

	records, err := statusStore.GetBatchRecords(ctx, "batch_1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func coverageRecord(cellID string, lat, lon, signal float64) *model.CoverageRecord {
	return model.NewCoverageRecord(model.CoveragePoint{
		CellID:         cellID,
		Latitude:       lat,
		Longitude:      lon,
		SignalStrength: signal,
	}, model.BatchMetadata{Source: "drive-test"}, time.Now(), 90*24*time.Hour)
}

func TestCoverageUpsertIdempotent(t *testing.T) {
	_, coverageStore := newTestStores(t)
	ctx := context.Background()

	record := coverageRecord("cell-1", 37.7, -122.4, -60)
	require.NoError(t, coverageStore.UpsertRecord(ctx, record))
	require.NoError(t, coverageStore.UpsertRecord(ctx, record))

	got, err := coverageStore.GetCell(ctx, "cell-1")
	require.NoError(t, err)
	assert.Equal(t, "cell-1", got.CellID)
	assert.Equal(t, -60.0, got.SignalStrength)
	assert.Equal(t, "37_-123", got.GridID)
	assert.Equal(t, "drive-test", got.Metadata.Source)

	// The grid index holds a single entry for the cell.
	records, err := coverageStore.QueryGrid(ctx, "37_-123", -150, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCoverageGetCellNotFound(t *testing.T) {
	_, coverageStore := newTestStores(t)

	_, err := coverageStore.GetCell(context.Background(), "cell-missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestQueryGridBySignalRange(t *testing.T) {
	_, coverageStore := newTestStores(t)
	ctx := context.Background()

	require.NoError(t, coverageStore.UpsertRecord(ctx, coverageRecord("cell-strong", 37.1, -122.1, -40)))
	require.NoError(t, coverageStore.UpsertRecord(ctx, coverageRecord("cell-mid", 37.2, -122.2, -75)))
	require.NoError(t, coverageStore.UpsertRecord(ctx, coverageRecord("cell-weak", 37.3, -122.3, -120)))

	records, err := coverageStore.QueryGrid(ctx, "37_-123", -90, -30)
	require.NoError(t, err)
	require.Len(t, records, 2)

	cells := []string{records[0].CellID, records[1].CellID}
	assert.Contains(t, cells, "cell-strong")
	assert.Contains(t, cells, "cell-mid")

	records, err = coverageStore.QueryGrid(ctx, "99_99", -150, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestScanAll(t *testing.T) {
	_, coverageStore := newTestStores(t)
	ctx := context.Background()

	for _, cellID := range []string{"cell-a", "cell-b", "cell-c"} {
		require.NoError(t, coverageStore.UpsertRecord(ctx, coverageRecord(cellID, 10.5, 20.5, -80)))
	}

	records, err := coverageStore.ScanAll(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}
