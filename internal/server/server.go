package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pitstophq/pitstop/internal/audit"
	auditdomain "github.com/pitstophq/pitstop/internal/audit/domain"
	"github.com/pitstophq/pitstop/internal/cache"
	"github.com/pitstophq/pitstop/internal/carwash"
	carwashdomain "github.com/pitstophq/pitstop/internal/carwash/domain"
	"github.com/pitstophq/pitstop/internal/catalog"
	catalogdomain "github.com/pitstophq/pitstop/internal/catalog/domain"
	"github.com/pitstophq/pitstop/internal/clock"
	"github.com/pitstophq/pitstop/internal/config"
	"github.com/pitstophq/pitstop/internal/customer"
	customerdomain "github.com/pitstophq/pitstop/internal/customer/domain"
	"github.com/pitstophq/pitstop/internal/parking"
	parkingdomain "github.com/pitstophq/pitstop/internal/parking/domain"
	"github.com/pitstophq/pitstop/internal/scheduler"
	"github.com/pitstophq/pitstop/internal/simracing"
	simracingdomain "github.com/pitstophq/pitstop/internal/simracing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	audit.Module,
	catalog.Module,
	customer.Module,
	carwash.Module,
	simracing.Module,
	parking.Module,
	scheduler.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestMeta())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	clock        clock.Clock
	cache        *cache.Cache
	auditSvc     auditdomain.Recorder
	catalogSvc   catalogdomain.Service
	customerSvc  customerdomain.Service
	carWashSvc   carwashdomain.Service
	simRacingSvc simracingdomain.Service
	parkingSvc   parkingdomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Clock        clock.Clock
	Cache        *cache.Cache
	AuditSvc     auditdomain.Recorder
	CatalogSvc   catalogdomain.Service
	CustomerSvc  customerdomain.Service
	CarWashSvc   carwashdomain.Service
	SimRacingSvc simracingdomain.Service
	ParkingSvc   parkingdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("server"),
		clock:        p.Clock,
		cache:        p.Cache,
		auditSvc:     p.AuditSvc,
		catalogSvc:   p.CatalogSvc,
		customerSvc:  p.CustomerSvc,
		carWashSvc:   p.CarWashSvc,
		simRacingSvc: p.SimRacingSvc,
		parkingSvc:   p.ParkingSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Car wash --------
	carWash := api.Group("/carwash")
	{
		carWash.GET("/transactions", s.ListCarWashTransactions)
		carWash.POST("/bookings", s.CreateCarWashBooking)
		carWash.POST("/transactions", s.StartCarWashDirect)
		carWash.POST("/transactions/:id/start", s.StartCarWashFromBooking)
		carWash.POST("/transactions/:id/ready", s.AdvanceCarWashToReady)
		carWash.POST("/transactions/:id/checkout", s.CheckoutCarWash)
		carWash.POST("/transactions/:id/cancel", s.CancelCarWash)
		carWash.POST("/transactions/:id/rollback", s.RollbackCarWash)
		carWash.GET("/customers", s.ListCarWashCustomers)
		carWash.POST("/customers", s.CreateCarWashCustomer)
		carWash.PATCH("/customers/:id", s.UpdateCarWashCustomer)
		carWash.GET("/customers/:id/streak", s.ListCarWashStreak)
		carWash.GET("/customers/:id/checkout-details", s.CarWashCheckoutDetails)
		carWash.GET("/vehicle-types", s.ListCarWashVehicleTypes)
	}

	// -------- Sim racing --------
	simRacing := api.Group("/simracing")
	{
		simRacing.GET("/transactions", s.ListSimRacingTransactions)
		simRacing.POST("/bookings", s.CreateSimRacingBooking)
		simRacing.POST("/sessions", s.StartSimRacingSession)
		simRacing.POST("/transactions/:id/complete", s.CompleteSimRacing)
		simRacing.POST("/transactions/:id/cancel", s.CancelSimRacing)
		simRacing.POST("/transactions/:id/rollback", s.RollbackSimRacing)
		simRacing.GET("/rigs", s.ListSimRacingRigs)
		simRacing.GET("/customers", s.ListSimRacingCustomers)
		simRacing.POST("/customers", s.CreateSimRacingCustomer)
		simRacing.PATCH("/customers/:id", s.UpdateSimRacingCustomer)
	}

	// -------- Parking --------
	parkingGroup := api.Group("/parking")
	{
		parkingGroup.GET("/transactions", s.ListParkingTransactions)
		parkingGroup.POST("/transactions", s.ParkVehicle)
		parkingGroup.POST("/transactions/:id/checkout", s.CheckoutParking)
		parkingGroup.POST("/transactions/:id/cancel", s.CancelParking)
		parkingGroup.POST("/transactions/:id/rollback", s.RollbackParking)
		parkingGroup.GET("/vehicle-types", s.ListParkingVehicleTypes)
	}

	// -------- Shared --------
	api.GET("/payment-modes", s.ListPaymentModes)
	api.GET("/dashboard/summary", s.DashboardSummary)
	api.GET("/dashboard/visitors", s.VisitorCounts)
	api.GET("/activities", s.ListActivities)
}
