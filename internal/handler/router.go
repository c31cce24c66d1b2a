package handler

import (
	"liverymarket/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// SetupRouter wires every route onto a fresh gin engine.
func SetupRouter(h *Handler, cfg *config.Config, logger *logrus.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		api.POST("/accounts", h.EnsureAccount)

		account := api.Group("/accounts/:chat_id")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/link", h.GetLink)
			account.POST("/link", h.LinkAccount)
			account.DELETE("/link", h.UnlinkAccount)
			account.POST("/injections", h.InjectItem)
			account.GET("/injections", h.ListInjections)
			account.GET("/credits", h.ListCredits)
			account.GET("/topups", h.ListTopups)
		}

		catalog := api.Group("/catalog")
		{
			catalog.GET("/cars", h.ListCatalog)
			catalog.GET("/cars/:code", h.GetCar)
			catalog.GET("/items/:id", h.GetLivery)
			catalog.GET("/search", h.SearchCatalog)
		}

		api.GET("/products", h.ListProducts)

		topup := api.Group("/topups")
		{
			topup.POST("", h.CreateTopup)
			topup.POST("/:id/proof", h.AttachProof)
		}

		admin := api.Group("/admin", AdminMiddleware(&cfg.Admin))
		{
			admin.GET("/topups/pending", h.ListPending)
			admin.GET("/topups/lookup", h.LookupTopup)
			admin.POST("/topups/:id/approve", h.ApproveTopup)
			admin.POST("/topups/:id/reject", h.RejectTopup)
			admin.GET("/stats", h.Stats)
			admin.POST("/catalog/refresh", h.RefreshCatalog)
		}
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
