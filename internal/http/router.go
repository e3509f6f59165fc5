package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "tg-subscriptions-backend/docs"
	"tg-subscriptions-backend/internal/common/middleware"
)

// ServiceName is reported by the probes.
const ServiceName = "tg-subscriptions-backend"

type RouterDeps struct {
	Debug          bool
	AllowedOrigins []string

	Tokens      LinkTokens
	DailyCounts DailyCounts
	Checks      map[string]Check

	// WebhookSecret and Updates are set only in webhook mode.
	WebhookSecret string
	Updates       UpdateQueue
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(d RouterDeps) *gin.Engine {
	if !d.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger("/health", "/live", "/ready"))
	router.Use(middleware.Recovery())
	router.Use(middleware.ErrorHandler())
	router.Use(cors.New(corsConfig(d.AllowedOrigins)))
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/telegram/webhook"})))

	NewHealthHandler(ServiceName, d.Checks).RegisterRoutes(router)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if d.WebhookSecret != "" && d.Updates != nil {
		NewWebhookHandler(d.WebhookSecret, d.Updates).RegisterRoutes(router)
	}

	v1 := router.Group("/api/v1")
	telegram := v1.Group("/telegram")
	{
		NewLinkSessionHandler(d.Tokens).RegisterRoutes(telegram)
		NewDailyCountsHandler(d.DailyCounts).RegisterRoutes(telegram)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Authorization", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}
