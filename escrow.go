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
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/taskilo/escrow/config"
	"github.com/taskilo/escrow/database"
	redis_db "github.com/taskilo/escrow/internal/redis-db"
)

// SQLFiles embeds the schema migrations run by the migrate command.
//
//go:embed sql/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("escrow.engine")

// Engine represents the main struct for the escrow application. It owns the
// lifecycle transitions, the reconciliation of incoming bank transfers and
// the scheduled payout batches.
type Engine struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	gateway    PaymentGateway
	config     *config.Configuration
}

// NewEngine initializes a new instance of Engine with the provided
// configuration and database datasource. It initializes the Redis client,
// the task queue and the payment gateway client.
func NewEngine(configuration *config.Configuration, db database.IDataSource) (*Engine, error) {
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)
	gateway := NewGatewayClient(configuration)

	newEngine := &Engine{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		gateway:    gateway,
		config:     configuration,
	}
	return newEngine, nil
}
