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
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/geocell-labs/coverage/model"
)

// Script results for the guarded mutations below.
const (
	scriptTerminal = -1
	scriptMissing  = -2
)

// updateRecordScript applies field updates only while the record is
// non-terminal. COMPLETED and FAILED rows are sticky: a stale retry delivery
// can never resurrect them. retry_count is monotonic: a duplicate delivery
// carrying an older count never lowers the value already recorded.
var updateRecordScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status == false then return -2 end
if status == 'COMPLETED' or status == 'FAILED' then return -1 end
for i = 1, #ARGV, 2 do
  if ARGV[i] == 'retry_count' then
    local current = tonumber(redis.call('HGET', KEYS[1], 'retry_count')) or 0
    if tonumber(ARGV[i+1]) > current then
      redis.call('HSET', KEYS[1], 'retry_count', ARGV[i+1])
    end
  else
    redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
  end
end
return 1
`)

// incrementRetryScript bumps retry_count atomically under the same terminal
// guard, so concurrent duplicate deliveries of a retry message can only
// increase the counter, never clobber it with a stale value.
var incrementRetryScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status == false then return -2 end
if status == 'COMPLETED' or status == 'FAILED' then return -1 end
return redis.call('HINCRBY', KEYS[1], 'retry_count', 1)
`)

// RedisStatusStore keeps one hash per status record plus a per-batch set of
// record ids for the range read, all bounded by the record TTL.
type RedisStatusStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStatusStore returns a status store rooted at the given key prefix.
func NewRedisStatusStore(client redis.UniversalClient, prefix string) *RedisStatusStore {
	if prefix == "" {
		prefix = "status"
	}
	return &RedisStatusStore{client: client, prefix: prefix}
}

func (s *RedisStatusStore) recordKey(batchID, recordID string) string {
	return fmt.Sprintf("%s:record:%s:%s", s.prefix, batchID, recordID)
}

func (s *RedisStatusStore) batchKey(batchID string) string {
	return fmt.Sprintf("%s:batch:%s", s.prefix, batchID)
}

// CreateRecord persists the initial PENDING row and registers it in the
// batch index. Both keys expire at the record's TTL.
func (s *RedisStatusStore) CreateRecord(ctx context.Context, record *model.StatusRecord) error {
	point, err := json.Marshal(record.Point)
	if err != nil {
		return errors.Wrap(err, "encoding point")
	}

	key := s.recordKey(record.BatchID, record.RecordID)
	expireAt := time.Unix(record.TTL, 0)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"batch_id", record.BatchID,
		"record_id", record.RecordID,
		"status", string(record.Status),
		"retry_count", strconv.Itoa(record.RetryCount),
		"error", record.Error,
		"updated_at", record.UpdatedAt,
		"last_retry", record.LastRetry,
		"ttl", strconv.FormatInt(record.TTL, 10),
		"point", string(point),
	)
	pipe.ExpireAt(ctx, key, expireAt)
	pipe.SAdd(ctx, s.batchKey(record.BatchID), record.RecordID)
	pipe.ExpireAt(ctx, s.batchKey(record.BatchID), expireAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "creating status record %s", record.RecordID)
	}
	return nil
}

// UpdateRecord applies one of the closed status transitions through the
// terminal-state guard.
func (s *RedisStatusStore) UpdateRecord(ctx context.Context, batchID, recordID string, update model.StatusUpdate) error {
	if err := update.Validate(); err != nil {
		return errors.Wrap(err, "invalid status update")
	}

	args := []interface{}{
		"status", string(update.Status()),
		"updated_at", time.Now().UTC().Format(time.RFC3339),
	}
	switch u := update.(type) {
	case model.MarkRetrying:
		args = append(args, "retry_count", strconv.Itoa(u.RetryCount))
		if u.Error != "" {
			args = append(args, "error", u.Error)
		}
		if !u.LastRetry.IsZero() {
			args = append(args, "last_retry", u.LastRetry.UTC().Format(time.RFC3339))
		}
	case model.MarkFailed:
		args = append(args, "retry_count", strconv.Itoa(u.RetryCount), "error", u.Error)
	}

	res, err := updateRecordScript.Run(ctx, s.client, []string{s.recordKey(batchID, recordID)}, args...).Int()
	if err != nil {
		return errors.Wrapf(err, "updating status record %s", recordID)
	}
	switch res {
	case scriptTerminal:
		return ErrTerminalState
	case scriptMissing:
		return ErrRecordNotFound
	}
	return nil
}

// IncrementRetryCount atomically bumps retry_count and returns the new value.
func (s *RedisStatusStore) IncrementRetryCount(ctx context.Context, batchID, recordID string) (int, error) {
	res, err := incrementRetryScript.Run(ctx, s.client, []string{s.recordKey(batchID, recordID)}).Int()
	if err != nil {
		return 0, errors.Wrapf(err, "incrementing retry count for %s", recordID)
	}
	switch res {
	case scriptTerminal:
		return 0, ErrTerminalState
	case scriptMissing:
		return 0, ErrRecordNotFound
	}
	return res, nil
}

// GetBatchRecords reads every record registered under the batch id. Records
// whose hash already expired are skipped; the result is ordered by point
// index within the batch.
func (s *RedisStatusStore) GetBatchRecords(ctx context.Context, batchID string) ([]model.StatusRecord, error) {
	recordIDs, err := s.client.SMembers(ctx, s.batchKey(batchID)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "reading batch index %s", batchID)
	}

	records := make([]model.StatusRecord, 0, len(recordIDs))
	for _, recordID := range recordIDs {
		fields, err := s.client.HGetAll(ctx, s.recordKey(batchID, recordID)).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "reading status record %s", recordID)
		}
		if len(fields) == 0 {
			continue
		}
		records = append(records, parseStatusRecord(fields))
	}

	sort.Slice(records, func(i, j int) bool {
		return recordIndex(records[i].RecordID) < recordIndex(records[j].RecordID)
	})
	return records, nil
}

func parseStatusRecord(fields map[string]string) model.StatusRecord {
	retryCount, _ := strconv.Atoi(fields["retry_count"])
	ttl, _ := strconv.ParseInt(fields["ttl"], 10, 64)

	record := model.StatusRecord{
		BatchID:    fields["batch_id"],
		RecordID:   fields["record_id"],
		Status:     model.Status(fields["status"]),
		RetryCount: retryCount,
		Error:      fields["error"],
		UpdatedAt:  fields["updated_at"],
		LastRetry:  fields["last_retry"],
		TTL:        ttl,
	}
	if raw := fields["point"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &record.Point)
	}
	return record
}

func recordIndex(recordID string) int {
	idx := strings.LastIndex(recordID, "-")
	if idx < 0 {
		return 0
	}
	n, _ := strconv.Atoi(recordID[idx+1:])
	return n
}
