package app

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/attendance-sync/internal/config"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/correction"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/device"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/leave"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/overtime"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/cron"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/devicelink"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/redis"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/storage"
	"github.com/cmlabs-hris/attendance-sync/internal/repository/postgresql"
	attendanceService "github.com/cmlabs-hris/attendance-sync/internal/service/attendance"
	correctionService "github.com/cmlabs-hris/attendance-sync/internal/service/correction"
	deviceService "github.com/cmlabs-hris/attendance-sync/internal/service/device"
	"github.com/cmlabs-hris/attendance-sync/internal/service/file"
	leaveService "github.com/cmlabs-hris/attendance-sync/internal/service/leave"
	overtimeService "github.com/cmlabs-hris/attendance-sync/internal/service/overtime"
	"go.uber.org/zap"
)

// App holds the wired pipeline shared by the API server and the sync command.
type App struct {
	Attendance attendance.AttendanceService
	Device     device.DeviceService
	Overtime   overtime.OvertimeService
	Deduction  leave.DeductionService
	Correction correction.CorrectionService
	Scheduler  *cron.Scheduler

	db     *database.DB
	redis  *redis.Client
	logger *zap.Logger
}

// New connects to PostgreSQL (and Redis when configured), applies migrations and wires every service.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	dsn := cfg.DatabaseURL()
	if err := database.RunMigrations(dsn, logger); err != nil {
		return nil, err
	}

	db, err := database.NewPostgreSQLDB(ctx, dsn, database.PoolConfig{
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a := &App{db: db, logger: logger}

	fileStorage, err := storage.NewLocalStorage(cfg.Storage.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize local storage: %w", err)
	}

	var locker device.Locker = deviceService.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		a.redis, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		locker = redis.NewDeviceLocker(a.redis, cfg.Redis.LockTTL)
	} else {
		logger.Warn("REDIS_ADDR not set, device locks are local to this process")
	}

	tx := postgresql.NewTransactor(db)
	punchRepo := postgresql.NewPunchRepository(db)
	segmentRepo := postgresql.NewSegmentRepository(db)
	dayRepo := postgresql.NewClassifiedDayRepository(db)
	directory := postgresql.NewEmployeeDirectory(db)
	deviceStore := postgresql.NewDeviceRepository(db)
	overtimeRepo := postgresql.NewOvertimeRepository(db)
	holidayRepo := postgresql.NewHolidayRepository(db)
	deductionRepo := postgresql.NewDeductionRepository(db)
	ledger := postgresql.NewLeaveLedger(db)
	batchRepo := postgresql.NewImportBatchRepository(db)
	correctionRepo := postgresql.NewCorrectionRepository(db)

	a.Overtime = overtimeService.NewOvertimeService(tx, overtimeRepo, holidayRepo, overtimeService.Config{
		Rates: overtime.RateConfig{
			WeekdayMultiplier: cfg.Overtime.WeekdayRate,
			WeekendMultiplier: cfg.Overtime.WeekendRate,
			HolidayMultiplier: cfg.Overtime.HolidayRate,
			WeekdayCapMinutes: cfg.Overtime.WeekdayCapMinutes,
			WeekendCapMinutes: cfg.Overtime.WeekendCapMinutes,
			HolidayCapMinutes: cfg.Overtime.HolidayCapMinutes,
		},
		Weekend: cfg.Overtime.Weekend,
	}, logger.Named("overtime"))

	a.Deduction = leaveService.NewDeductionService(tx, deductionRepo, ledger, leave.DeductionConfig{
		LateGraceMinutes:  cfg.Deduction.LateGraceMinutes,
		EarlyGraceMinutes: cfg.Deduction.EarlyGraceMinutes,
		MinutesPerUnit:    cfg.Deduction.MinutesPerUnit,
		LeaveType:         cfg.Deduction.LeaveType,
		AutoConfirm:       cfg.Deduction.AutoConfirm,
	}, logger.Named("leave"))

	processors := []attendance.DayProcessor{a.Overtime}
	if cfg.Deduction.Enabled {
		processors = append(processors, a.Deduction)
	}

	location := cfg.Location()
	a.Attendance = attendanceService.NewAttendanceService(
		tx,
		punchRepo,
		segmentRepo,
		dayRepo,
		directory,
		deviceStore,
		file.NewFileService(fileStorage),
		batchRepo,
		processors,
		attendanceService.Config{
			Location:   location,
			Policy:     cfg.Pipeline.DirectionPolicy,
			Layouts:    cfg.Pipeline.DateTimeFormats,
			Classifier: cfg.ClassifierConfig(),
		},
		logger.Named("attendance"),
	)

	a.Correction = correctionService.NewCorrectionService(
		tx,
		correctionRepo,
		segmentRepo,
		a.Attendance,
		correctionService.Config{Location: location},
		logger.Named("correction"),
	)

	a.Device = deviceService.NewDeviceService(
		deviceStore,
		deviceStore,
		devicelink.NewConnector(cfg.Device.Timeout, location),
		locker,
		a.Attendance,
		deviceService.Config{Workers: cfg.Device.Workers},
		logger.Named("device"),
	)

	a.Scheduler = cron.NewScheduler(logger.Named("cron"))
	cron.NewPipelineJobs(a.Device, a.Attendance, cfg.Import.DaysBack, location, logger.Named("cron")).
		RegisterJobs(a.Scheduler, cfg.Cron.PullInterval, cfg.Cron.ReconcileInterval)

	return a, nil
}

// Close releases the database pool and the Redis connection.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
