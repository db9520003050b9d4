package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/taskilo/escrow/config"
	"github.com/taskilo/escrow/model"
)

func mockAuthConfig() {
	config.MockConfig(&config.Configuration{
		Server: config.ServerConfig{SecretKey: "platform-secret"},
		TransactionWebhook: config.TransactionWebhookConfig{
			ProxySecret:    "proxy-secret",
			AllowedOrigins: []string{"taskilo.de", "taskilo.com"},
		},
		Payout: config.PayoutConfig{ApiKey: "payout-key"},
	})
}

func routerWith(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func performRequest(router *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestSecretKeyAuthMiddleware(t *testing.T) {
	mockAuthConfig()
	router := routerWith(SecretKeyAuthMiddleware())

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "not-the-secret", http.StatusUnauthorized},
		{"valid key", "platform-secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.key != "" {
				headers[KeyHeader] = tt.key
			}
			resp := performRequest(router, headers)
			assert.Equal(t, tt.wantStatus, resp.Code)
		})
	}
}

func TestSecretKeyAuthMiddlewareUnconfigured(t *testing.T) {
	config.MockConfig(&config.Configuration{})
	router := routerWith(SecretKeyAuthMiddleware())

	resp := performRequest(router, map[string]string{KeyHeader: "anything"})
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestProxyAuthMiddleware(t *testing.T) {
	mockAuthConfig()
	router := routerWith(ProxyAuthMiddleware())

	tests := []struct {
		name       string
		secret     string
		origin     string
		wantStatus int
	}{
		{"missing secret", "", "taskilo.de", http.StatusUnauthorized},
		{"wrong secret", "guess", "taskilo.de", http.StatusUnauthorized},
		{"missing origin", "proxy-secret", "", http.StatusUnauthorized},
		{"unknown origin", "proxy-secret", "evil.example", http.StatusUnauthorized},
		{"allowed origin", "proxy-secret", "taskilo.de", http.StatusOK},
		{"second allowed origin", "proxy-secret", "taskilo.com", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := performRequest(router, map[string]string{
				ProxySecretHeader: tt.secret,
				OriginHeader:      tt.origin,
			})
			assert.Equal(t, tt.wantStatus, resp.Code)
		})
	}
}

func TestProxyAuthMiddlewareWildcardOrigin(t *testing.T) {
	config.MockConfig(&config.Configuration{
		TransactionWebhook: config.TransactionWebhookConfig{
			ProxySecret:    "proxy-secret",
			AllowedOrigins: []string{"*"},
		},
	})
	router := routerWith(ProxyAuthMiddleware())

	resp := performRequest(router, map[string]string{
		ProxySecretHeader: "proxy-secret",
		OriginHeader:      "anywhere.example",
	})
	assert.Equal(t, http.StatusOK, resp.Code)

	// Wildcard still requires an origin header at all.
	resp = performRequest(router, map[string]string{ProxySecretHeader: "proxy-secret"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestPayoutKeyMiddleware(t *testing.T) {
	mockAuthConfig()
	router := routerWith(PayoutKeyMiddleware())

	resp := performRequest(router, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = performRequest(router, map[string]string{PayoutKeyHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = performRequest(router, map[string]string{PayoutKeyHeader: "payout-key"})
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestPayoutKeyMiddlewareUnconfigured(t *testing.T) {
	config.MockConfig(&config.Configuration{})
	router := routerWith(PayoutKeyMiddleware())

	resp := performRequest(router, map[string]string{PayoutKeyHeader: "payout-key"})
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestActorMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var captured model.Actor
	router := gin.New()
	router.Use(ActorMiddleware())
	router.GET("/whoami", func(c *gin.Context) {
		captured = GetActor(c)
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name string
		id   string
		role string
		want model.Actor
	}{
		{"user", "usr_1", "", model.Actor{ID: "usr_1", Role: model.RoleUser}},
		{"admin", "usr_2", model.RoleAdmin, model.Actor{ID: "usr_2", Role: model.RoleAdmin}},
		{"unknown role falls back to user", "usr_3", "superuser", model.Actor{ID: "usr_3", Role: model.RoleUser}},
		{"anonymous", "", "", model.Actor{Role: model.RoleUser}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.id != "" {
				req.Header.Set(CallerIDHeader, tt.id)
			}
			if tt.role != "" {
				req.Header.Set(CallerRoleHeader, tt.role)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			assert.Equal(t, http.StatusOK, resp.Code)
			assert.Equal(t, tt.want, captured)
		})
	}
}

func TestGetActorWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	actor := GetActor(c)
	assert.Equal(t, model.Actor{Role: model.RoleUser}, actor)
}
