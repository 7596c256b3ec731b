package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/app"
	"github.com/cmlabs-hris/attendance-sync/internal/config"
	appHTTP "github.com/cmlabs-hris/attendance-sync/internal/handler/http"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/jwt"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.App.LogLevel, cfg.App.Env)
	if err != nil {
		fmt.Println("Error creating logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to start pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	JWTService := jwt.NewJWTService(cfg.JWT.Secret)

	attendanceHandler := appHTTP.NewAttendanceHandler(pipeline.Attendance, cfg.Import.MaxFileSize, log.Named("http"))
	deviceHandler := appHTTP.NewDeviceHandler(pipeline.Device)
	overtimeHandler := appHTTP.NewOvertimeHandler(pipeline.Overtime, pipeline.Attendance)
	deductionHandler := appHTTP.NewDeductionHandler(pipeline.Deduction)
	correctionHandler := appHTTP.NewCorrectionHandler(pipeline.Correction)

	router := appHTTP.NewRouter(
		appHTTP.RouterConfig{
			Env:            cfg.App.Env,
			AllowedOrigins: cfg.App.AllowedOrigins,
			APIKeyHash:     cfg.API.KeyHash,
		},
		JWTService,
		appHTTP.Handlers{
			Attendance: attendanceHandler,
			Device:     deviceHandler,
			Overtime:   overtimeHandler,
			Deduction:  deductionHandler,
			Correction: correctionHandler,
		},
	)

	pipeline.Scheduler.Start()
	defer pipeline.Scheduler.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server running", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
