package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/draftworks/meridian/internal/audit"
	auditdomain "github.com/draftworks/meridian/internal/audit/domain"
	"github.com/draftworks/meridian/internal/clock"
	"github.com/draftworks/meridian/internal/commission"
	commissiondomain "github.com/draftworks/meridian/internal/commission/domain"
	"github.com/draftworks/meridian/internal/config"
	"github.com/draftworks/meridian/internal/observability"
	"github.com/draftworks/meridian/internal/payout"
	payoutdomain "github.com/draftworks/meridian/internal/payout/domain"
	transferprovider "github.com/draftworks/meridian/internal/providers/transfer"
	"github.com/draftworks/meridian/internal/ratelimit"
	"github.com/draftworks/meridian/internal/reconcile"
	"github.com/draftworks/meridian/internal/wallet"
	walletdomain "github.com/draftworks/meridian/internal/wallet/domain"
	"github.com/draftworks/meridian/internal/webhook"
	webhookdomain "github.com/draftworks/meridian/internal/webhook/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	clock.Module,
	audit.Module,
	commission.Module,
	wallet.Module,
	transferprovider.Module,
	ratelimit.Module,
	payout.Module,
	webhook.Module,
	reconcile.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, metrics *observability.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.GinLogging(log))
	r.Use(observability.GinTracing())
	r.Use(observability.GinMetrics(metrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, metrics *observability.Metrics) *gin.Engine {
	return NewEngine(log, metrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
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
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *snowflake.Node
	commissionSvc commissiondomain.Service
	walletSvc     walletdomain.Service
	payoutSvc     payoutdomain.Service
	webhookSvc    webhookdomain.Service
	auditSvc      auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	CommissionSvc commissiondomain.Service
	WalletSvc     walletdomain.Service
	PayoutSvc     payoutdomain.Service
	WebhookSvc    webhookdomain.Service
	AuditSvc      auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		commissionSvc: p.CommissionSvc,
		walletSvc:     p.WalletSvc,
		payoutSvc:     p.PayoutSvc,
		webhookSvc:    p.WebhookSvc,
		auditSvc:      p.AuditSvc,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.UserRequired())

	api.POST("/earnings/credits", s.RecordEarning)
	api.GET("/earnings/summary", s.GetEarningsSummary)

	api.GET("/wallet", s.GetWallet)
	api.GET("/wallet/transactions", s.ListWalletTransactions)

	api.POST("/payouts", s.RequestPayout)
	api.GET("/payouts", s.ListPayouts)
	api.GET("/payouts/:id", s.GetPayout)
	api.GET("/payouts/options", s.ListPayoutOptions)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/paystack", s.HandlePaystackWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.AdminRequired())

	admin.POST("/payouts/:id/reconcile", s.ReconcilePayout)
	admin.GET("/payouts", s.AdminListPayouts)
	admin.POST("/wallets/:user_id/adjustments", s.AdjustWallet)
	admin.GET("/audit-logs", s.ListAuditLogs)
	admin.GET("/commission-tiers", s.ListCommissionTiers)
	admin.GET("/webhook-events", s.ListWebhookEvents)
}
