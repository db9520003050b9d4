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

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskilo/escrow/config"
	"github.com/taskilo/escrow/model"
)

// Headers the platform gateway and the payment proxy authenticate with.
// Caller identity headers are trusted because the gateway strips them from
// outside traffic before they ever reach this service.
const (
	KeyHeader         = "X-Escrow-Key"
	ProxySecretHeader = "X-Proxy-Secret"
	OriginHeader      = "X-Forwarded-Origin"
	PayoutKeyHeader   = "X-Payout-Key"
	CallerIDHeader    = "X-Caller-Id"
	CallerRoleHeader  = "X-Caller-Role"
	actorContextKey   = "actor"
)

// ProxyAuthMiddleware guards the inbound transaction feed. The proxy must
// present the shared secret and name one of the allowed origins; anything
// else is rejected before any reconciliation work happens.
func ProxyAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		conf, err := config.Fetch()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Proxy secret is not configured"})
			return
		}
		secret := conf.TransactionWebhook.ProxySecret
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Proxy secret is not configured"})
			return
		}

		if !secureCompare(secret, c.GetHeader(ProxySecretHeader)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid proxy secret"})
			return
		}

		origin := c.GetHeader(OriginHeader)
		if !originAllowed(origin, conf.TransactionWebhook.AllowedOrigins) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Origin not allowed"})
			return
		}

		c.Next()
	}
}

// PayoutKeyMiddleware guards the payout trigger endpoint, which the
// scheduler and operators call with a dedicated key.
func PayoutKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		conf, err := config.Fetch()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Payout key is not configured"})
			return
		}
		if conf.Payout.ApiKey == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Payout key is not configured"})
			return
		}

		if !secureCompare(conf.Payout.ApiKey, c.GetHeader(PayoutKeyHeader)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid payout key"})
			return
		}

		c.Next()
	}
}

// ActorMiddleware resolves the caller from the identity headers the gateway
// attaches. Requests without a caller ID are anonymous users; authorization
// on the service layer then rejects anything they may not do.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := model.Actor{
			ID:   c.GetHeader(CallerIDHeader),
			Role: model.RoleUser,
		}
		if c.GetHeader(CallerRoleHeader) == model.RoleAdmin {
			actor.Role = model.RoleAdmin
		}
		c.Set(actorContextKey, actor)
		c.Next()
	}
}

// GetActor returns the caller resolved by ActorMiddleware.
func GetActor(c *gin.Context) model.Actor {
	if value, exists := c.Get(actorContextKey); exists {
		if actor, ok := value.(model.Actor); ok {
			return actor
		}
	}
	return model.Actor{Role: model.RoleUser}
}

func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	for _, candidate := range allowed {
		if candidate == origin || candidate == "*" {
			return true
		}
	}
	return false
}
