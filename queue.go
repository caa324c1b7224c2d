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
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/geocell-labs/coverage/config"
	redis_db "github.com/geocell-labs/coverage/internal/redis-db"
	"github.com/geocell-labs/coverage/model"
)

// Queue represents the asynq-backed transport for batch and retry tasks.
type Queue struct {
	Client *asynq.Client
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	return &Queue{
		Client: client,
	}
}

// EnqueueBatch enqueues a validated batch for asynchronous processing.
// Batches are sharded across the ingestion queues by batch id so one large
// submitter cannot starve the others.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - message *model.BatchMessage: The batch message to enqueue.
//
// Returns:
// - error: An error if the batch could not be enqueued.
func (q *Queue) EnqueueBatch(ctx context.Context, message *model.BatchMessage) error {
	ctx, span := tracer.Start(ctx, "Adding Batch To Redis Queue")
	defer span.End()

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	info, err := q.Client.EnqueueContext(ctx, q.batchTask(message, payload), asynq.MaxRetry(5))
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued batch: %+v", message.BatchID)

	return nil
}

// EnqueueRetry enqueues a single failed point for redelivery after the
// backoff delay computed by the escalation policy. The delay rides on the
// task's process-in time, so the point stays invisible to workers until it
// elapses.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - message *model.RetryMessage: The retry message to enqueue.
// - delay time.Duration: How long to hold the task before delivery.
//
// Returns:
// - error: An error if the retry could not be enqueued.
func (q *Queue) EnqueueRetry(ctx context.Context, message *model.RetryMessage, delay time.Duration) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(fmt.Sprintf("%s_retry_%d", message.RecordID, message.RetryCount)),
		asynq.Queue(cfg.Queue.RetryQueue),
		asynq.ProcessIn(delay),
	}
	task := asynq.NewTask(cfg.Queue.RetryQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task, asynq.MaxRetry(5))
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued retry %d for record: %+v", message.RetryCount, message.RecordID)
	return nil
}

// batchTask generates a task for a batch and assigns it to a specific queue
// based on the batch id. Hashing keeps all deliveries of one batch on the
// same queue while spreading distinct batches across workers.
//
// Parameters:
// - message *model.BatchMessage: The batch for which to generate the task.
// - payload []byte: The serialized batch message.
//
// Returns:
// - *asynq.Task: The generated task ready to be enqueued.
func (q *Queue) batchTask(message *model.BatchMessage, payload []byte) *asynq.Task {
	cnf, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config: %v", err)
		return nil
	}
	queueIndex := hashBatchID(message.BatchID) % cnf.Queue.NumberOfQueues
	queueName := fmt.Sprintf("%s_%d", cnf.Queue.IngestionQueue, queueIndex+1)

	taskOptions := []asynq.Option{asynq.TaskID(message.BatchID), asynq.Queue(queueName)}
	return asynq.NewTask(queueName, payload, taskOptions...)
}

// hashBatchID returns a consistent hash value for a string batch ID.
//
// Parameters:
// - batchID string: The batch ID to hash.
//
// Returns:
// - int: The hash value of the batch ID.
func hashBatchID(batchID string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(batchID))
	return int(hasher.Sum32())
}
