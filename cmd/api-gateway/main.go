package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/kpi-hub-api/api/swagger"
	"github.com/noah-isme/kpi-hub-api/internal/handler"
	"github.com/noah-isme/kpi-hub-api/internal/middleware"
	"github.com/noah-isme/kpi-hub-api/internal/models"
	"github.com/noah-isme/kpi-hub-api/internal/repository"
	"github.com/noah-isme/kpi-hub-api/internal/service"
	"github.com/noah-isme/kpi-hub-api/pkg/cache"
	"github.com/noah-isme/kpi-hub-api/pkg/config"
	"github.com/noah-isme/kpi-hub-api/pkg/database"
	"github.com/noah-isme/kpi-hub-api/pkg/lock"
	"github.com/noah-isme/kpi-hub-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/kpi-hub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/kpi-hub-api/pkg/middleware/requestid"
	"github.com/noah-isme/kpi-hub-api/pkg/storage"
)

// @title KPI Hub API
// @version 1.0.0
// @description KPI management service with multi-level approval workflow
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	evidenceStore, err := storage.NewLocalStorage(cfg.Evidence.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init evidence storage", "error", err)
	}
	reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init report storage", "error", err)
	}
	evidenceSigner := storage.NewSignedURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL)
	reportSigner := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	orgUnitRepo := repository.NewOrgUnitRepository(db)
	cycleRepo := repository.NewCycleRepository(db)
	kpiRepo := repository.NewKpiRepository(db)
	actualRepo := repository.NewActualRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	evidenceRepo := repository.NewEvidenceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()

	notificationSvc := service.NewNotificationService(logr, cfg.Notifications.Workers, cfg.Notifications.BufferSize)
	notificationSvc.Start(context.Background())
	defer notificationSvc.Stop()

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:   cfg.JWT.Secret,
		AccessTokenExpiry:   cfg.JWT.Expiration,
		RefreshTokenExpiry:  cfg.JWT.RefreshExpiration,
		Issuer:              "kpi-hub-api",
		SingleSession:       cfg.Auth.SingleSession,
		AutoProvisionDomain: cfg.Auth.AutoProvisionDomain,
	})
	userSvc := service.NewUserService(userRepo, nil, logr)
	orgUnitSvc := service.NewOrgUnitService(orgUnitRepo, nil, logr)
	cycleSvc := service.NewCycleService(cycleRepo, kpiRepo, userRepo, nil, logr)

	entityStore := service.NewEntityStore(kpiRepo, actualRepo)
	approvalSvc := service.NewApprovalService(approvalRepo, userRepo, orgUnitRepo, entityStore, notificationSvc, logr, service.ApprovalConfig{
		SLADays:          cfg.Approval.SLADays,
		FallbackHODEmail: cfg.Approval.FallbackHODEmail,
		AdminProxy:       cfg.Approval.AdminProxy,
	})

	kpiSvc := service.NewKpiService(kpiRepo, cycleRepo, userRepo, approvalSvc, nil, logr, service.KpiRules{
		MinKpis:   cfg.KPIRules.MinKpis,
		MaxKpis:   cfg.KPIRules.MaxKpis,
		MinWeight: cfg.KPIRules.MinWeight,
		MaxWeight: cfg.KPIRules.MaxWeight,
	})
	actualSvc := service.NewActualService(actualRepo, kpiRepo, userRepo, approvalSvc, nil, logr, cfg.Scoring.AchievementCap)

	evidenceSvc := service.NewEvidenceService(evidenceRepo, actualRepo, evidenceStore, nil, evidenceSigner, logr, service.EvidenceConfig{
		MaxFileSizeBytes: cfg.Evidence.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Evidence.AllowedMIMEs,
	})

	indexingSvc := service.NewIndexingService(evidenceRepo, actualRepo, evidenceStore, nil, lock.NewManager(), userRepo, metricsSvc, logr, service.IndexingConfig{
		LockTTL:   cfg.Indexing.LockTTL,
		BatchSize: cfg.Indexing.BatchSize,
	})

	dashboardSvc := service.NewDashboardService(kpiRepo, actualRepo, approvalRepo, userRepo, cacheRepo, metricsSvc, logr, cfg.Approval.SLADays, cfg.Dashboard.CacheTTL)
	reportSvc := service.NewReportService(actualRepo, kpiRepo, userRepo, reportStore, reportSigner, nil, nil, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc, userSvc)
	userHandler := handler.NewUserHandler(userSvc)
	orgUnitHandler := handler.NewOrgUnitHandler(orgUnitSvc)
	cycleHandler := handler.NewCycleHandler(cycleSvc)
	kpiHandler := handler.NewKpiHandler(kpiSvc, userSvc, metricsSvc)
	actualHandler := handler.NewActualHandler(actualSvc, userSvc, metricsSvc)
	approvalHandler := handler.NewApprovalHandler(approvalSvc, dashboardSvc, metricsSvc)
	evidenceHandler := handler.NewEvidenceHandler(evidenceSvc, actualSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc, userSvc)
	reportHandler := handler.NewReportHandler(reportSvc, userSvc)
	adminHandler := handler.NewAdminHandler(indexingSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	// Signed downloads authenticate through the token itself.
	api.GET("/files/evidence", evidenceHandler.Download)
	api.GET("/files/reports", reportHandler.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		admin := string(models.RoleAdmin)

		users := protected.Group("/users")
		{
			users.GET("", middleware.RBAC(admin, string(models.RoleManager), string(models.RoleLineManager)), userHandler.List)
			users.GET("/:id", middleware.RBAC(admin, string(models.RoleManager), string(models.RoleLineManager), "SELF"), userHandler.Get)
			users.POST("", middleware.RBAC(admin), userHandler.Create)
			users.PUT("/:id", middleware.RBAC(admin), userHandler.Update)
			users.DELETE("/:id", middleware.RBAC(admin), userHandler.Delete)
		}

		orgUnits := protected.Group("/org-units")
		{
			orgUnits.GET("", orgUnitHandler.List)
			orgUnits.GET("/:id", orgUnitHandler.Get)
			orgUnits.POST("", middleware.RBAC(admin), orgUnitHandler.Create)
			orgUnits.PUT("/:id", middleware.RBAC(admin), orgUnitHandler.Update)
			orgUnits.DELETE("/:id", middleware.RBAC(admin), orgUnitHandler.Delete)
		}

		cycles := protected.Group("/cycles")
		{
			cycles.GET("", cycleHandler.List)
			cycles.GET("/current", cycleHandler.Current)
			cycles.GET("/:id", cycleHandler.Get)
			cycles.POST("", middleware.RBAC(admin), cycleHandler.Create)
			cycles.POST("/:id/close", middleware.RBAC(admin), middleware.Audit(userRepo, models.AuditActionCycleClose, "cycles"), cycleHandler.Close)
		}

		kpis := protected.Group("/kpis")
		{
			kpis.GET("", kpiHandler.List)
			kpis.GET("/validate", kpiHandler.Validate)
			kpis.GET("/:id", kpiHandler.Get)
			kpis.POST("", kpiHandler.Create)
			kpis.PUT("/:id", kpiHandler.Update)
			kpis.POST("/submit", kpiHandler.Submit)
			kpis.POST("/:id/request-change", middleware.RBAC(admin), kpiHandler.RequestChange)
		}

		actuals := protected.Group("/actuals")
		{
			actuals.GET("", actualHandler.List)
			actuals.GET("/preview", actualHandler.Preview)
			actuals.GET("/:id", actualHandler.Get)
			actuals.POST("", actualHandler.Submit)
			actuals.POST("/:id/evidence", evidenceHandler.Upload)
			actuals.GET("/:id/evidence", evidenceHandler.List)
		}

		approvals := protected.Group("/approvals")
		{
			approvals.GET("", approvalHandler.List)
			approvals.GET("/history", approvalHandler.History)
			approvals.POST("/:id/approve", middleware.Approvers(), approvalHandler.Approve)
			approvals.POST("/:id/reject", middleware.Approvers(), approvalHandler.Reject)
		}

		protected.GET("/evidence/:id/download", evidenceHandler.SignURL)
		protected.GET("/notifications", notificationHandler.Feed)

		if cfg.Dashboard.Enabled {
			protected.GET("/dashboard/summary", dashboardHandler.Summary)
		}
		protected.GET("/reports/scorecard", reportHandler.Scorecard)

		adminGroup := protected.Group("/admin")
		adminGroup.Use(middleware.RBAC(admin))
		{
			adminGroup.POST("/index-documents", adminHandler.TriggerIndexing)
			adminGroup.GET("/index-documents", adminHandler.IndexingStatus)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
