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
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/geocell-labs/coverage/model"
	"github.com/geocell-labs/coverage/store"
)

// MockQueue captures enqueued messages instead of publishing them.
type MockQueue struct {
	mu      sync.Mutex
	Batches []*model.BatchMessage
	Retries []*model.RetryMessage
	Delays  []time.Duration

	FailEnqueueBatch error
	FailEnqueueRetry error
}

func (q *MockQueue) EnqueueBatch(ctx context.Context, message *model.BatchMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.FailEnqueueBatch != nil {
		return q.FailEnqueueBatch
	}
	q.Batches = append(q.Batches, message)
	return nil
}

func (q *MockQueue) EnqueueRetry(ctx context.Context, message *model.RetryMessage, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.FailEnqueueRetry != nil {
		return q.FailEnqueueRetry
	}
	q.Retries = append(q.Retries, message)
	q.Delays = append(q.Delays, delay)
	return nil
}

// MockStatusStore is an in-memory status store with the same transition
// semantics as the Redis one: terminal states are sticky and retry counts
// only increase.
type MockStatusStore struct {
	mu      sync.Mutex
	records map[string]*model.StatusRecord
}

func NewMockStatusStore() *MockStatusStore {
	return &MockStatusStore{records: make(map[string]*model.StatusRecord)}
}

func statusKey(batchID, recordID string) string {
	return batchID + "/" + recordID
}

func (s *MockStatusStore) CreateRecord(ctx context.Context, record *model.StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	s.records[statusKey(record.BatchID, record.RecordID)] = &clone
	return nil
}

func (s *MockStatusStore) UpdateRecord(ctx context.Context, batchID, recordID string, update model.StatusUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[statusKey(batchID, recordID)]
	if !ok {
		return store.ErrRecordNotFound
	}
	if record.Status.Terminal() {
		return store.ErrTerminalState
	}
	record.Status = update.Status()
	record.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	switch u := update.(type) {
	case model.MarkRetrying:
		if u.RetryCount > record.RetryCount {
			record.RetryCount = u.RetryCount
		}
		if u.Error != "" {
			record.Error = u.Error
		}
		if !u.LastRetry.IsZero() {
			record.LastRetry = u.LastRetry.UTC().Format(time.RFC3339)
		}
	case model.MarkFailed:
		if u.RetryCount > record.RetryCount {
			record.RetryCount = u.RetryCount
		}
		record.Error = u.Error
	}
	return nil
}

func (s *MockStatusStore) IncrementRetryCount(ctx context.Context, batchID, recordID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[statusKey(batchID, recordID)]
	if !ok {
		return 0, store.ErrRecordNotFound
	}
	if record.Status.Terminal() {
		return 0, store.ErrTerminalState
	}
	record.RetryCount++
	return record.RetryCount, nil
}

func (s *MockStatusStore) GetBatchRecords(ctx context.Context, batchID string) ([]model.StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []model.StatusRecord
	for _, record := range s.records {
		if record.BatchID == batchID {
			records = append(records, *record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return mockRecordIndex(records[i].RecordID) < mockRecordIndex(records[j].RecordID)
	})
	return records, nil
}

// Record returns a copy of one tracked record, for assertions.
func (s *MockStatusStore) Record(batchID, recordID string) (model.StatusRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[statusKey(batchID, recordID)]
	if !ok {
		return model.StatusRecord{}, false
	}
	return *record, true
}

func mockRecordIndex(recordID string) int {
	idx := strings.LastIndex(recordID, "-")
	if idx < 0 {
		return 0
	}
	n, _ := strconv.Atoi(recordID[idx+1:])
	return n
}

// MockCoverageStore is an in-memory coverage store with per-cell failure
// injection for exercising the retry path.
type MockCoverageStore struct {
	mu      sync.Mutex
	Records map[string]*model.CoverageRecord
	Upserts int

	// FailFor returns an error for upserts of the given cell ids.
	FailFor map[string]error
}

func NewMockCoverageStore() *MockCoverageStore {
	return &MockCoverageStore{
		Records: make(map[string]*model.CoverageRecord),
		FailFor: make(map[string]error),
	}
}

func (s *MockCoverageStore) UpsertRecord(ctx context.Context, record *model.CoverageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Upserts++
	if err, ok := s.FailFor[record.CellID]; ok {
		return err
	}
	clone := *record
	s.Records[record.CellID] = &clone
	return nil
}

func (s *MockCoverageStore) GetCell(ctx context.Context, cellID string) (*model.CoverageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.Records[cellID]
	if !ok {
		return nil, store.ErrRecordNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *MockCoverageStore) QueryGrid(ctx context.Context, gridID string, minSignal, maxSignal float64) ([]model.CoverageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []model.CoverageRecord
	for _, record := range s.Records {
		if record.GridID == gridID && record.SignalStrength >= minSignal && record.SignalStrength <= maxSignal {
			records = append(records, *record)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CellID < records[j].CellID })
	return records, nil
}

func (s *MockCoverageStore) ScanAll(ctx context.Context) ([]model.CoverageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []model.CoverageRecord
	for _, record := range s.Records {
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CellID < records[j].CellID })
	return records, nil
}

// MockCache is a map-backed cache for tests. Values are stored as-is; Get
// only fills targets of type *model.BatchStatus, which is all the pipeline
// caches.
type MockCache struct {
	mu    sync.Mutex
	items map[string]interface{}
}

func NewMockCache() *MockCache {
	return &MockCache{items: make(map[string]interface{})}
}

func (c *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

func (c *MockCache) Get(ctx context.Context, key string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.items[key]
	if !ok {
		return nil
	}
	if target, ok := data.(*model.BatchStatus); ok {
		if cached, ok := value.(*model.BatchStatus); ok {
			*target = *cached
		}
	}
	return nil
}

func (c *MockCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}
