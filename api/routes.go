package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vitwit/chaindonate/logger"
)

// SetupRoutes registers the v1 API. metrics may be nil.
func SetupRoutes(r *gin.Engine, svc Service, metrics http.Handler, log logger.Logger) {
	log = logger.Component(log, "api")

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/networks", ListNetworks(svc))
		v1.POST("/intents", CreateIntent(svc, log))
		v1.GET("/intents/:id", GetIntent(svc, log))
		v1.POST("/intents/:id/verify", VerifyIntent(svc, log))
	}
}

// NewRouter returns a gin engine with recovery and the v1 routes.
func NewRouter(svc Service, metrics http.Handler, log logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	SetupRoutes(r, svc, metrics, log)
	return r
}
