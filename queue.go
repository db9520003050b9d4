/*
Copyright 2025 Taskilo Authors.

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

package escrow

import (
	"context"
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"

	"github.com/taskilo/escrow/config"
	redis_db "github.com/taskilo/escrow/internal/redis-db"
)

// Queue wraps the asynq client used to hand work off to the background
// workers (outbound webhooks and scheduled payout runs).
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// queueWebhook enqueues an outbound webhook for delivery. Delivery is retried
// by the worker, so callers treat enqueue failures as non-fatal.
func (q *Queue) queueWebhook(ctx context.Context, payload []byte) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{asynq.Queue(cfg.Queue.WebhookQueue), asynq.MaxRetry(5)}
	task := asynq.NewTask(cfg.Queue.WebhookQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	return nil
}

// QueuePayoutRun enqueues an on-demand payout batch run. The scheduler
// enqueues the same task on its cron; both paths converge on the worker.
func (q *Queue) QueuePayoutRun(ctx context.Context, runID string) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{"run_id": runID})
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(runID),
		asynq.Queue(cfg.Queue.PayoutQueue),
	}
	task := asynq.NewTask(cfg.Queue.PayoutQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued payout run: %+v", runID)
	return nil
}

// PayoutRunQueued reports whether a run with this ID is already sitting in
// the payout queue. The task ID would reject a duplicate enqueue anyway;
// checking first lets the caller answer with a clean conflict.
func (q *Queue) PayoutRunQueued(runID string) bool {
	cfg, err := config.Fetch()
	if err != nil {
		return false
	}
	task, err := q.Inspector.GetTaskInfo(cfg.Queue.PayoutQueue, runID)
	return err == nil && task != nil
}
