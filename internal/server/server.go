package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rentease/rentledger/internal/config"
	"github.com/rentease/rentledger/internal/ledger"
	ledgerdomain "github.com/rentease/rentledger/internal/ledger/domain"
	"github.com/rentease/rentledger/internal/observability"
	obsmiddleware "github.com/rentease/rentledger/internal/observability/logger"
	obsmetrics "github.com/rentease/rentledger/internal/observability/metrics"
	obstracing "github.com/rentease/rentledger/internal/observability/tracing"
	"github.com/rentease/rentledger/internal/paymentintent"
	"github.com/rentease/rentledger/internal/paymentintent/adapters"
	paymentdomain "github.com/rentease/rentledger/internal/paymentintent/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	ledger.Module,
	paymentintent.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	ledgerSvc      ledgerdomain.Service
	intentSvc      paymentdomain.Service
	registry       *adapters.Registry
	adapterConfigs map[string]paymentdomain.AdapterConfig
	obsMetrics     *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	LedgerSvc      ledgerdomain.Service
	IntentSvc      paymentdomain.Service
	Registry       *adapters.Registry
	AdapterConfigs map[string]paymentdomain.AdapterConfig
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("server"),
		ledgerSvc:      p.LedgerSvc,
		intentSvc:      p.IntentSvc,
		registry:       p.Registry,
		adapterConfigs: p.AdapterConfigs,
		obsMetrics:     p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Payments --------
	api.POST("/payments/initiate", s.InitiatePayment)
	api.GET("/payments/:intent_id/status", s.GetPaymentStatus)
	api.POST("/payments/callback/:provider", s.HandleProviderCallback)

	// -------- Ledger --------
	api.GET("/tenants/:tenant_id/ledger", s.GetTenantLedger)
	api.GET("/tenants/:tenant_id/statement", s.GetTenantStatement)
	api.GET("/landlords/:landlord_id/overview", s.GetLandlordOverview)
}
