// Package main runs the club events HTTP server with graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/felicity-events/backend/config"
	"github.com/felicity-events/backend/internal/attendance"
	"github.com/felicity-events/backend/internal/auth"
	"github.com/felicity-events/backend/internal/events"
	"github.com/felicity-events/backend/internal/forms"
	"github.com/felicity-events/backend/internal/lifecycle"
	"github.com/felicity-events/backend/internal/merch"
	"github.com/felicity-events/backend/internal/middleware"
	"github.com/felicity-events/backend/internal/models"
	"github.com/felicity-events/backend/internal/notify"
	"github.com/felicity-events/backend/internal/registrations"
	"github.com/felicity-events/backend/internal/worker"
	"github.com/felicity-events/backend/pkg/response"
	"github.com/felicity-events/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}
	defer st.close()

	backend, err := notify.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("notification transport", zap.Error(err))
	}
	defer backend.Close()
	dispatcher := notify.NewDispatcher(backend.Transport, cfg.Notify.EnqueueTimeout, logger)

	var proofs *storage.S3
	if cfg.AWS.PaymentProofBucket != "" {
		proofs, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			PaymentProofBucket:   cfg.AWS.PaymentProofBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			proofs = nil
		}
	}

	clock := lifecycle.SystemClock
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TokenTTL)

	eventSvc := events.NewService(st.events, clock, logger)
	formSvc := forms.NewService(st.forms, eventSvc, clock, logger)
	registrationSvc := registrations.NewService(registrations.Deps{
		Store:    st.registrations,
		Events:   eventSvc,
		Profiles: st.profiles,
		Forms:    st.forms,
		Ledger:   st.ledger,
		Notifier: dispatcher,
		Clock:    clock,
		Logger:   logger,
	})
	merchSvc := merch.NewService(merch.Deps{
		Store:    st.merch,
		Events:   eventSvc,
		Profiles: st.profiles,
		Ledger:   st.ledger,
		Notifier: dispatcher,
		Clock:    clock,
		Logger:   logger,
	})
	attendanceSvc := attendance.NewService(st.attendance, eventSvc, clock, logger)

	eventHandler := events.NewHandler(eventSvc)
	formHandler := forms.NewHandler(formSvc)
	registrationHandler := registrations.NewHandler(registrationSvc, logger)
	var proofStore merch.ProofStore
	if proofs != nil {
		proofStore = proofs
	}
	merchHandler := merch.NewHandler(merchSvc, proofStore, logger)
	attendanceHandler := attendance.NewHandler(attendanceSvc)
	notificationHandler := notify.NewHandler(st.logs, eventSvc)

	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	organizer := middleware.RequireRole(models.RoleOrganizer)
	participant := middleware.RequireRole(models.RoleParticipant)
	{
		api.GET("/events/:id", eventHandler.Get)
		api.GET("/forms/events/:id", formHandler.Get)

		// Organizer: event lifecycle and forms
		api.POST("/organizer/events", organizer, eventHandler.Create)
		api.PATCH("/organizer/events/:id", organizer, eventHandler.Patch)
		api.POST("/organizer/events/:id/publish", organizer, eventHandler.Publish)
		api.PUT("/organizer/events/:id/merch-items", organizer, eventHandler.SetMerchItems)
		api.PUT("/organizer/forms/events/:id", organizer, formHandler.Save)
		api.GET("/organizer/events/:id/notifications", organizer, notificationHandler.List)

		// Participant: registration
		api.POST("/events/:id/register", participant, registrationHandler.Register)
		api.GET("/events/:id/registration", participant, registrationHandler.Get)
		api.DELETE("/events/:id/registration", participant, registrationHandler.Cancel)

		// Merchandise
		api.GET("/merch/events/:id", participant, merchHandler.Catalog)
		api.POST("/merch/events/:id/orders", participant, merchHandler.CreateOrder)
		api.POST("/merch/events/:id/payment-proofs", participant, merchHandler.UploadProof)
		api.POST("/merch/events/:id/payment-proofs/presign", participant, merchHandler.PresignProof)
		api.GET("/merch/events/:id/orders", organizer, merchHandler.ListOrders)
		api.POST("/merch/orders/:id/approve", organizer, merchHandler.Approve)
		api.POST("/merch/orders/:id/reject", organizer, merchHandler.Reject)

		// Attendance
		api.POST("/attendance/events/:id/scan", organizer, attendanceHandler.Scan)
		api.POST("/attendance/events/:id/manual", organizer, attendanceHandler.Manual)
		api.GET("/attendance/events/:id", organizer, attendanceHandler.Summary)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Notify.InProcess {
		processor := worker.NewNotificationProcessor(notify.NewSender(cfg.Notify, logger), st.logs, logger)
		switch {
		case backend.Queue != nil:
			go processor.Run(workerCtx, backend.Queue)
		case backend.Rabbit != nil:
			go func() {
				if err := processor.RunBroker(workerCtx, backend.Rabbit); err != nil {
					logger.Error("notification consumer stopped", zap.Error(err))
				}
			}()
		}
		logger.Info("notification worker started in-process")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
