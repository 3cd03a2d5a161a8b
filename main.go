package main

import (
	"database/sql"
	"fmt"

	"civicreport/config"
	"civicreport/internal/blobstore"
	"civicreport/internal/handler"
	"civicreport/internal/messaging"
	"civicreport/internal/middleware"
	"civicreport/internal/repository"
	"civicreport/internal/service"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.LoadConfig("config/config.json")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Info("Connected to database")

	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("Failed to initialize database schema: %v", err)
	}

	reportRepo := repository.NewReportRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)

	reportService := service.NewReportService(reportRepo, attachmentRepo, cfg.Anonymous)
	reportService.SetCategorizer(service.NewKeywordCategorizer())

	if cfg.RabbitMQ.Host != "" {
		rmq, err := messaging.NewRabbitMQ(
			cfg.RabbitMQ.Host,
			cfg.RabbitMQ.Port,
			cfg.RabbitMQ.User,
			cfg.RabbitMQ.Password,
		)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rmq.Close()
		reportService.SetPublisher(rmq)
	} else {
		log.Warn("RabbitMQ not configured, event publishing disabled")
	}

	var attachmentService *service.AttachmentService
	if cfg.Minio.Endpoint != "" {
		blobs, err := blobstore.NewMinioStore(
			cfg.Minio.Endpoint,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.Bucket,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("Failed to connect to object storage: %v", err)
		}
		reportService.SetBlobStore(blobs)
		attachmentService = service.NewAttachmentService(reportRepo, attachmentRepo, blobs)
	} else {
		log.Warn("MinIO not configured, attachments disabled")
	}

	reportHandler := handler.NewReportHandler(reportService)

	r := gin.Default()

	r.GET("/health", reportHandler.Health)

	api := r.Group("/api/v1")

	reports := api.Group("/reports")
	{
		reports.POST("", middleware.OptionalAuth(cfg.JWT.Secret), reportHandler.SubmitReport)
		reports.GET("", reportHandler.ListReports)
		reports.GET("/nearby", reportHandler.NearbyReports)
		reports.GET("/:id", reportHandler.GetReport)
		reports.PUT("/:id", middleware.RequireAuth(cfg.JWT.Secret), reportHandler.UpdateReport)
		reports.PUT("/:id/status", middleware.RequireRole(cfg.JWT.Secret, middleware.RoleOfficial), reportHandler.UpdateStatus)
		reports.DELETE("/:id", middleware.RequireRole(cfg.JWT.Secret, middleware.RoleOfficial), reportHandler.DeleteReport)

		if attachmentService != nil {
			attachmentHandler := handler.NewAttachmentHandler(attachmentService)
			reports.POST("/:id/attachments", middleware.RequireAuth(cfg.JWT.Secret), attachmentHandler.Upload)
			reports.GET("/:id/attachments", attachmentHandler.List)
			reports.DELETE("/:id/attachments/:attachmentID", middleware.RequireAuth(cfg.JWT.Secret), attachmentHandler.Delete)
		}
	}

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Infof("Report service starting on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
