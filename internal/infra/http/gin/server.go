package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"staybook/internal/infra/config"
	"staybook/internal/infra/obs"
)

type ItemHTTP interface {
	Register(c *gin.Context)
	SetAvailability(c *gin.Context)
	CheckAvailability(c *gin.Context)
	Quote(c *gin.Context)
	Calendar(c *gin.Context)
}

type ReservationHTTP interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	ListForGuest(c *gin.Context)
	Confirm(c *gin.Context)
	Cancel(c *gin.Context)
	Complete(c *gin.Context)
}

type PaymentHTTP interface {
	Record(c *gin.Context)
	Balance(c *gin.Context)
	Settle(c *gin.Context)
	Refund(c *gin.Context)
}

type Handlers struct {
	Items        ItemHTTP
	Reservations ReservationHTTP
	Payments     PaymentHTTP
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.AccessLog())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Idempotency-Key", "X-Request-ID"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	if h.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.Metrics))
	}

	api := router.Group("/api/v1")
	if cfg.RateLimitRPS > 0 {
		api.Use(newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware())
	}
	if h.Items != nil {
		items := api.Group("/items/:id")
		items.PUT("", h.Items.Register)
		items.PUT("/availability", h.Items.SetAvailability)
		items.GET("/availability", h.Items.CheckAvailability)
		items.GET("/quote", h.Items.Quote)
		items.GET("/calendar", h.Items.Calendar)
	}
	if h.Reservations != nil {
		api.POST("/reservations", h.Reservations.Create)
		api.GET("/reservations/:id", h.Reservations.Get)
		api.POST("/reservations/:id/confirm", h.Reservations.Confirm)
		api.POST("/reservations/:id/cancel", h.Reservations.Cancel)
		api.POST("/reservations/:id/complete", h.Reservations.Complete)
		api.GET("/guests/:id/reservations", h.Reservations.ListForGuest)
	}
	if h.Payments != nil {
		api.POST("/reservations/:id/payments", h.Payments.Record)
		api.GET("/reservations/:id/balance", h.Payments.Balance)
		api.POST("/payments/:id/settle", h.Payments.Settle)
		api.POST("/payments/:id/refunds", h.Payments.Refund)
	}
	return router
}

// MetricsHandler serves the collectors of reg.
func MetricsHandler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
