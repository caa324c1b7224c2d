package api

import (
	"github.com/gin-gonic/gin"

	"github.com/geocell-labs/coverage"
	"github.com/geocell-labs/coverage/api/middleware"
	"github.com/geocell-labs/coverage/config"
)

type Api struct {
	coverage *coverage.Coverage
	router   *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/coverage", a.IngestBatch)
	router.GET("/coverage/batches/:batch_id/status", a.GetBatchStatus)
	router.GET("/coverage/cells/:cell_id", a.GetCellCoverage)
	router.GET("/coverage/grid/:grid_id", a.QueryGridCoverage)
	return a.router
}

func NewAPI(c *coverage.Coverage) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{coverage: c, router: r}
}
