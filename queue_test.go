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
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskilo/escrow/config"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
		Queue: config.QueueConfig{WebhookQueue: "webhook_queue", PayoutQueue: "payout_queue"},
	})

	queueOptions := asynq.RedisClientOpt{Addr: mr.Addr()}
	return &Queue{
		Client:    asynq.NewClient(queueOptions),
		Inspector: asynq.NewInspector(queueOptions),
	}
}

func TestQueuePayoutRun(t *testing.T) {
	q := newTestQueue(t)

	err := q.QueuePayoutRun(context.Background(), "run_1")
	require.NoError(t, err)

	task, err := q.Inspector.GetTaskInfo("payout_queue", "run_1")
	require.NoError(t, err)
	assert.Equal(t, "run_1", task.ID)
	assert.True(t, q.PayoutRunQueued("run_1"))
}

func TestQueuePayoutRunDuplicateID(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.QueuePayoutRun(context.Background(), "run_dup"))

	// the task ID makes the enqueue idempotent per run
	err := q.QueuePayoutRun(context.Background(), "run_dup")
	assert.Error(t, err)
	assert.True(t, q.PayoutRunQueued("run_dup"))
}

func TestPayoutRunQueuedUnknownRun(t *testing.T) {
	q := newTestQueue(t)

	assert.False(t, q.PayoutRunQueued("run_missing"))
}
