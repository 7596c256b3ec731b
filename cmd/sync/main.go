package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cmlabs-hris/attendance-sync/internal/app"
	"github.com/cmlabs-hris/attendance-sync/internal/config"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/logger"
	"go.uber.org/zap"
)

// sync runs the scheduled jobs once and exits, for use from an external scheduler.
// With -device it pulls a single terminal; with -from/-to it reconciles a range.
func main() {
	deviceID := flag.String("device", "", "pull only this device")
	from := flag.String("from", "", "reconcile from date (YYYY-MM-DD)")
	to := flag.String("to", "", "reconcile to date (YYYY-MM-DD)")
	flag.Parse()

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

	if err := run(ctx, pipeline, *deviceID, *from, *to, log); err != nil {
		log.Error("sync failed", zap.Error(err))
		pipeline.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, pipeline *app.App, deviceID, from, to string, log *zap.Logger) error {
	switch {
	case deviceID != "":
		res, err := pipeline.Device.Sync(ctx, deviceID)
		if err != nil {
			return err
		}
		log.Info("device synced", zap.String("device_id", res.DeviceID), zap.Int("pulled", res.Pulled), zap.Int("stored", res.Stored))
		return nil

	case from != "" || to != "":
		req := attendance.ReconcileRequest{DateFrom: from, DateTo: to}
		if err := req.Validate(); err != nil {
			return err
		}
		res, err := pipeline.Attendance.Reconcile(ctx, req)
		if err != nil {
			return err
		}
		log.Info("range reconciled", zap.Int("days", len(res.Days)), zap.Int("frozen", len(res.Frozen)))
		return nil
	}

	if failed := pipeline.Scheduler.RunOnce(ctx); failed > 0 {
		return fmt.Errorf("%d job(s) failed", failed)
	}
	return nil
}
