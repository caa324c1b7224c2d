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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/geocell-labs/coverage/config"
	redis_db "github.com/geocell-labs/coverage/internal/redis-db"
	"github.com/geocell-labs/coverage/model"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
)

// processBatch handles a batch delivered from one of the ingestion queue
// shards. Per-point failures are escalated inside the pipeline; an error
// returned here is a bookkeeping failure the pipeline could not record, so
// it propagates and asynq redelivers the message. Upserts are idempotent
// and terminal states sticky, which makes redelivery safe.
func (b *coverageInstance) processBatch(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("coverage.ingestion.worker").Start(ctx, "Process Batch From Redis Queue")
	defer span.End()

	var message model.BatchMessage
	if err := json.Unmarshal(t.Payload(), &message); err != nil {
		logrus.Error(err)
		return err
	}

	if err := b.cvg.ProcessBatch(ctx, &message); err != nil {
		logrus.Infof("Batch %s pushed back for redelivery due to error: %v", message.BatchID, err)
		return err
	}

	log.Println(" [*] Batch Processed", message.BatchID)
	return nil
}

// processRetry handles a single point redelivered from the retry queue after
// its backoff delay elapsed.
func (b *coverageInstance) processRetry(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("coverage.retry.worker").Start(ctx, "Process Retry From Redis Queue")
	defer span.End()

	var message model.RetryMessage
	if err := json.Unmarshal(t.Payload(), &message); err != nil {
		logrus.Error(err)
		return err
	}

	if err := b.cvg.ProcessRetry(ctx, &message); err != nil {
		logrus.Infof("Retry %d for record %s pushed back for redelivery due to error: %v", message.RetryCount, message.RecordID, err)
		return err
	}

	log.Printf(" [*] Retry Processed %s", message.RecordID)
	return nil
}

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.RetryQueue] = 3

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.IngestionQueue, i)
		queues[queueName] = 1
	}
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(b *coverageInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	// Register handlers for ingestion queue shards
	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.IngestionQueue, i)
		mux.HandleFunc(queueName, b.processBatch)
	}

	mux.HandleFunc(cfg.Queue.RetryQueue, b.processRetry)
}

// workerCommands defines the "workers" command to start worker processes.
// The workers listen to the ingestion queue shards and the retry queue.
func workerCommands(b *coverageInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start coverage workers", // Short description of the command
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			// Load configuration
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			// Initialize observability (tracing)
			shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			if shutdown != nil {
				defer func() {
					if err := shutdown(ctx); err != nil {
						log.Printf("Error during shutdown: %v", err)
					}
				}()
			}

			// Initialize queues
			queues := initializeQueues()

			// Initialize worker server
			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			// Initialize task handlers
			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			// Start asynqmon server for health checks and monitoring
			redisOption, _ := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			h := asynqmon.New(asynqmon.Options{
				RootPath: "/monitoring", //  Optional: if you want to serve asynqmon under a sub-path.
				RedisConnOpt: asynq.RedisClientOpt{
					Addr:      redisOption.Addr,
					Password:  redisOption.Password,
					DB:        redisOption.DB,
					TLSConfig: redisOption.TLSConfig,
				},
			})

			// Start asynqmon HTTP server in a new goroutine
			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			// Start worker server
			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
