package api

import (
	"github.com/gin-gonic/gin"

	"github.com/taskilo/escrow"
	"github.com/taskilo/escrow/api/middleware"
	"github.com/taskilo/escrow/config"
)

type Api struct {
	engine *escrow.Engine
	router *gin.Engine
}

// Router wires the route table. Platform routes sit behind the shared
// platform secret; the transaction feed and the payout trigger have their
// own credentials and are deliberately outside that secret.
func (a Api) Router() *gin.Engine {
	router := a.router

	platform := router.Group("/")
	if conf, err := config.Fetch(); err == nil && conf.Server.Secure {
		platform.Use(middleware.SecretKeyAuthMiddleware())
	}
	platform.Use(middleware.ActorMiddleware())

	platform.POST("/escrows", a.EscrowLifecycle)
	platform.GET("/escrows", a.GetEscrows)

	platform.POST("/drafts", a.CreateJobDraft)
	platform.POST("/providers", a.CreateProvider)

	webhooks := router.Group("/internal/webhooks", middleware.ProxyAuthMiddleware())
	webhooks.POST("/transactions", a.IngestTransaction)

	payouts := router.Group("/payouts", middleware.PayoutKeyMiddleware())
	payouts.POST("/run", a.RunPayout)
	payouts.GET("/runs", a.GetPayoutRuns)

	return a.router
}

func NewAPI(e *escrow.Engine) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{engine: e, router: r}
}
