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
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/geocell-labs/coverage/model"
)

// RedisCoverageStore keeps one hash per accepted point keyed by cell id,
// plus a sorted set per grid bucket scored by signal strength for the
// spatial access path. All keys expire at the row TTL.
type RedisCoverageStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCoverageStore returns a coverage store rooted at the given key
// prefix.
func NewRedisCoverageStore(client redis.UniversalClient, prefix string) *RedisCoverageStore {
	if prefix == "" {
		prefix = "coverage"
	}
	return &RedisCoverageStore{client: client, prefix: prefix}
}

func (s *RedisCoverageStore) cellKey(cellID string) string {
	return fmt.Sprintf("%s:cell:%s", s.prefix, cellID)
}

func (s *RedisCoverageStore) gridKey(gridID string) string {
	return fmt.Sprintf("%s:grid:%s", s.prefix, gridID)
}

// UpsertRecord writes the coverage row and its grid index entry. The write
// is keyed by cell id, so reprocessing the same point via a retry replaces
// the row in place rather than duplicating it.
func (s *RedisCoverageStore) UpsertRecord(ctx context.Context, record *model.CoverageRecord) error {
	key := s.cellKey(record.CellID)
	gridKey := s.gridKey(record.GridID)
	expireAt := time.Unix(record.TTL, 0)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"cell_id", record.CellID,
		"latitude", strconv.FormatFloat(record.Latitude, 'f', -1, 64),
		"longitude", strconv.FormatFloat(record.Longitude, 'f', -1, 64),
		"signal_strength", strconv.FormatFloat(record.SignalStrength, 'f', -1, 64),
		"accuracy", strconv.FormatFloat(record.Accuracy, 'f', -1, 64),
		"timestamp", record.Timestamp,
		"grid_id", record.GridID,
		"source", record.Metadata.Source,
		"campaign", record.Metadata.Campaign,
		"device_id", record.Metadata.DeviceID,
		"ttl", strconv.FormatInt(record.TTL, 10),
	)
	pipe.ExpireAt(ctx, key, expireAt)
	pipe.ZAdd(ctx, gridKey, redis.Z{Score: record.SignalStrength, Member: record.CellID})
	pipe.ExpireAt(ctx, gridKey, expireAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "upserting coverage for cell %s", record.CellID)
	}
	return nil
}

// GetCell reads one coverage row by cell id.
func (s *RedisCoverageStore) GetCell(ctx context.Context, cellID string) (*model.CoverageRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.cellKey(cellID)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "reading coverage for cell %s", cellID)
	}
	if len(fields) == 0 {
		return nil, ErrRecordNotFound
	}
	record := parseCoverageRecord(fields)
	return &record, nil
}

// QueryGrid returns the rows of one spatial bucket whose signal strength
// lies within [minSignal, maxSignal]. Index entries whose row already
// expired are skipped.
func (s *RedisCoverageStore) QueryGrid(ctx context.Context, gridID string, minSignal, maxSignal float64) ([]model.CoverageRecord, error) {
	cellIDs, err := s.client.ZRangeByScore(ctx, s.gridKey(gridID), &redis.ZRangeBy{
		Min: strconv.FormatFloat(minSignal, 'f', -1, 64),
		Max: strconv.FormatFloat(maxSignal, 'f', -1, 64),
	}).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "querying grid %s", gridID)
	}

	records := make([]model.CoverageRecord, 0, len(cellIDs))
	for _, cellID := range cellIDs {
		record, err := s.GetCell(ctx, cellID)
		if errors.Is(err, ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

// ScanAll iterates every coverage row. Used by the snapshot export, not the
// ingestion path.
func (s *RedisCoverageStore) ScanAll(ctx context.Context) ([]model.CoverageRecord, error) {
	var records []model.CoverageRecord
	var cursor uint64
	match := fmt.Sprintf("%s:cell:*", s.prefix)

	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, errors.Wrap(err, "scanning coverage rows")
		}
		for _, key := range keys {
			fields, err := s.client.HGetAll(ctx, key).Result()
			if err != nil {
				return nil, errors.Wrapf(err, "reading coverage row %s", key)
			}
			if len(fields) == 0 {
				continue
			}
			records = append(records, parseCoverageRecord(fields))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return records, nil
}

func parseCoverageRecord(fields map[string]string) model.CoverageRecord {
	latitude, _ := strconv.ParseFloat(fields["latitude"], 64)
	longitude, _ := strconv.ParseFloat(fields["longitude"], 64)
	signal, _ := strconv.ParseFloat(fields["signal_strength"], 64)
	accuracy, _ := strconv.ParseFloat(fields["accuracy"], 64)
	ttl, _ := strconv.ParseInt(fields["ttl"], 10, 64)

	return model.CoverageRecord{
		CoveragePoint: model.CoveragePoint{
			CellID:         fields["cell_id"],
			Latitude:       latitude,
			Longitude:      longitude,
			SignalStrength: signal,
			Accuracy:       accuracy,
			Timestamp:      fields["timestamp"],
		},
		GridID: fields["grid_id"],
		Metadata: model.BatchMetadata{
			Source:   fields["source"],
			Campaign: fields["campaign"],
			DeviceID: fields["device_id"],
		},
		TTL: ttl,
	}
}
