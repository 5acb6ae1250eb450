package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"papertrade/internal/engine"
	"papertrade/internal/events"
	"papertrade/internal/monitor"
	"papertrade/pkg/db"
)

// Server wires HTTP endpoints around the engine service and the event bus.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Engine    engine.Service
	Metrics   *monitor.SystemMetrics
	JWTSecret string
}

// Options tunes the middleware stack.
type Options struct {
	RequestTimeout time.Duration
	RatePerSecond  float64
	RateBurst      int
}

func DefaultOptions() Options {
	return Options{RequestTimeout: 30 * time.Second, RatePerSecond: 20, RateBurst: 50}
}

func NewServer(bus *events.Bus, database *db.Database, engineSvc engine.Service, metrics *monitor.SystemMetrics, jwtSecret string, opts Options) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())                                          // Panic recovery (first)
	r.Use(RequestIDMiddleware())                                   // Request ID tracking
	r.Use(RequestLogger())                                         // Request logging (after ID is set)
	r.Use(monitor.GinMiddleware())                                 // Prometheus request metrics
	r.Use(RateLimitMiddleware(opts.RatePerSecond, opts.RateBurst)) // Rate limiting
	r.Use(CORSMiddleware())                                        // CORS (last before routes)

	s := &Server{
		Router:    r,
		Bus:       bus,
		DB:        database,
		Engine:    engineSvc,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
	}
	s.routes(opts.RequestTimeout)
	return s
}

func (s *Server) routes(timeout time.Duration) {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", s.getMetrics)
	s.Router.GET("/metrics/prometheus", gin.WrapH(monitor.Handler()))
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	api.Use(TimeoutMiddleware(timeout))
	{
		api.GET("/system/status", s.getSystemStatus)

		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/assets", s.listAssets)
			protected.GET("/assets/:asset", s.getAsset)
			protected.POST("/assets/:asset/deposit", s.deposit)
			protected.POST("/assets/:asset/withdraw", s.withdraw)
			protected.GET("/assets/:asset/performance", s.getPerformance)
			protected.GET("/assets/:asset/investment", s.getInvestment)
			protected.GET("/assets/:asset/trades", s.getTrades)
			protected.GET("/assets/:asset/report", s.getReport)
			protected.POST("/assets/:asset/run", s.runCycle)

			protected.GET("/capital", s.getCapital)
			protected.GET("/flows", s.getFlows)
			protected.GET("/risk", s.getRisk)

			admin := protected.Group("/admin")
			admin.Use(s.AdminOnly())
			admin.POST("/reset", s.resetLedger)
			admin.PUT("/risk", s.updateRiskConfig)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
