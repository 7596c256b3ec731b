package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	App       AppConfig
	API       APIConfig
	Pipeline  PipelineConfig
	Overtime  OvertimeConfig
	Deduction DeductionConfig
	Import    ImportConfig
	Device    DeviceConfig
	Cron      CronConfig
	Storage   StorageConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig enables the shared device lock when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port           int
	Env            string
	LogLevel       string
	Timezone       string
	AllowedOrigins []string
}

// APIConfig guards the import endpoints. KeyHash is a bcrypt hash of the API key.
type APIConfig struct {
	KeyHash string
}

// PipelineConfig holds the normalizer and classifier settings.
type PipelineConfig struct {
	DirectionPolicy          attendance.DirectionPolicy
	StandardMinutes          int
	OvertimeThresholdMinutes int
	LateGraceMinutes         int
	EarlyGraceMinutes        int
	ExpectedStart            time.Duration
	ExpectedEnd              time.Duration
	DateTimeFormats          []string
}

type OvertimeConfig struct {
	WeekdayRate       decimal.Decimal
	WeekendRate       decimal.Decimal
	HolidayRate       decimal.Decimal
	WeekdayCapMinutes int
	WeekendCapMinutes int
	HolidayCapMinutes int
	Weekend           []time.Weekday
}

type DeductionConfig struct {
	Enabled           bool
	LateGraceMinutes  int
	EarlyGraceMinutes int
	MinutesPerUnit    int
	LeaveType         string
	AutoConfirm       bool
}

type ImportConfig struct {
	DaysBack    int
	MaxFileSize int64
	Delimiter   string
}

type DeviceConfig struct {
	Timeout time.Duration
	Workers int
}

// CronConfig schedules the background jobs. A zero interval disables a job.
type CronConfig struct {
	PullInterval      time.Duration
	ReconcileInterval time.Duration
}

type StorageConfig struct {
	Path string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config, err := FromEnv()
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// FromEnv builds the configuration from environment variables without validating it.
func FromEnv() (*Config, error) {
	p := &envParser{}
	config := &Config{}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     p.int("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "attendance_sync"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		MaxConns: p.int("DB_MAX_CONNS", 25),
		MinConns: p.int("DB_MIN_CONNS", 5),
	}

	config.Redis = RedisConfig{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       p.int("REDIS_DB", 0),
		LockTTL:  p.duration("REDIS_LOCK_TTL", 10*time.Minute),
	}

	config.JWT = JWTConfig{
		Secret: getEnv("JWT_SECRET_KEY", ""),
	}

	config.App = AppConfig{
		Port:     p.int("APP_PORT", 8080),
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Timezone: getEnv("APP_TIMEZONE", "UTC"),
	}
	config.App.AllowedOrigins = getEnvSlice("CORS_ALLOWED_ORIGINS")
	if len(config.App.AllowedOrigins) == 0 {
		config.App.AllowedOrigins = []string{"http://localhost:3000"}
	}

	config.API = APIConfig{
		KeyHash: getEnv("API_KEY_HASH", ""),
	}

	config.Pipeline = PipelineConfig{
		DirectionPolicy:          attendance.DirectionPolicy(getEnv("DIRECTION_POLICY", string(attendance.DirectionTrusted))),
		StandardMinutes:          p.int("STANDARD_WORK_MINUTES", 480),
		OvertimeThresholdMinutes: p.int("OVERTIME_THRESHOLD_MINUTES", 30),
		LateGraceMinutes:         p.int("LATE_GRACE_MINUTES", 15),
		EarlyGraceMinutes:        p.int("EARLY_GRACE_MINUTES", 15),
		ExpectedStart:            p.clock("EXPECTED_START", "09:00"),
		ExpectedEnd:              p.clock("EXPECTED_END", "17:00"),
		DateTimeFormats:          getEnvSlice("DATETIME_FORMATS"),
	}

	config.Overtime = OvertimeConfig{
		WeekdayRate:       p.decimal("OVERTIME_WEEKDAY_RATE", "1.5"),
		WeekendRate:       p.decimal("OVERTIME_WEEKEND_RATE", "2.0"),
		HolidayRate:       p.decimal("OVERTIME_HOLIDAY_RATE", "3.0"),
		WeekdayCapMinutes: p.int("OVERTIME_WEEKDAY_CAP_MINUTES", 0),
		WeekendCapMinutes: p.int("OVERTIME_WEEKEND_CAP_MINUTES", 0),
		HolidayCapMinutes: p.int("OVERTIME_HOLIDAY_CAP_MINUTES", 0),
		Weekend:           p.weekdays("WEEKEND_DAYS", "saturday,sunday"),
	}

	config.Deduction = DeductionConfig{
		Enabled:           p.bool("LEAVE_DEDUCTION_ENABLED", true),
		LateGraceMinutes:  p.int("DEDUCTION_LATE_GRACE_MINUTES", 15),
		EarlyGraceMinutes: p.int("DEDUCTION_EARLY_GRACE_MINUTES", 15),
		MinutesPerUnit:    p.int("DEDUCTION_MINUTES_PER_DAY", 480),
		LeaveType:         getEnv("DEDUCTION_LEAVE_TYPE", "annual"),
		AutoConfirm:       p.bool("DEDUCTION_AUTO_CONFIRM", false),
	}

	config.Import = ImportConfig{
		DaysBack:    p.int("IMPORT_DAYS_BACK", 7),
		MaxFileSize: int64(p.int("IMPORT_MAX_FILE_SIZE_MB", 10)) << 20,
		Delimiter:   getEnv("IMPORT_DELIMITER", ","),
	}

	config.Device = DeviceConfig{
		Timeout: p.duration("DEVICE_TIMEOUT", 30*time.Second),
		Workers: p.int("DEVICE_SYNC_WORKERS", 4),
	}

	config.Cron = CronConfig{
		PullInterval:      p.duration("CRON_PULL_INTERVAL", 15*time.Minute),
		ReconcileInterval: p.duration("CRON_RECONCILE_INTERVAL", 24*time.Hour),
	}

	config.Storage = StorageConfig{
		Path: getEnv("STORAGE_PATH", "./storage"),
	}

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if c.API.KeyHash == "" {
		return fmt.Errorf("API_KEY_HASH is required")
	}
	if !validator.IsValidTimezone(c.App.Timezone) {
		return fmt.Errorf("APP_TIMEZONE %q is not a known time zone", c.App.Timezone)
	}
	if !c.Pipeline.DirectionPolicy.IsValid() {
		return fmt.Errorf("DIRECTION_POLICY must be trusted, alternate or time_of_day")
	}
	if c.Pipeline.StandardMinutes <= 0 {
		return fmt.Errorf("STANDARD_WORK_MINUTES must be positive")
	}
	if c.Pipeline.OvertimeThresholdMinutes < 0 {
		return fmt.Errorf("OVERTIME_THRESHOLD_MINUTES must not be negative")
	}
	if c.Pipeline.LateGraceMinutes < 0 || c.Pipeline.EarlyGraceMinutes < 0 {
		return fmt.Errorf("grace minutes must not be negative")
	}
	if c.Pipeline.ExpectedEnd <= c.Pipeline.ExpectedStart {
		return fmt.Errorf("EXPECTED_END must be after EXPECTED_START")
	}

	one := decimal.NewFromInt(1)
	for name, rate := range map[string]decimal.Decimal{
		"OVERTIME_WEEKDAY_RATE": c.Overtime.WeekdayRate,
		"OVERTIME_WEEKEND_RATE": c.Overtime.WeekendRate,
		"OVERTIME_HOLIDAY_RATE": c.Overtime.HolidayRate,
	} {
		if rate.LessThan(one) {
			return fmt.Errorf("%s must be at least 1", name)
		}
	}
	if c.Overtime.WeekdayCapMinutes < 0 || c.Overtime.WeekendCapMinutes < 0 || c.Overtime.HolidayCapMinutes < 0 {
		return fmt.Errorf("overtime caps must not be negative")
	}

	if c.Deduction.MinutesPerUnit <= 0 {
		return fmt.Errorf("DEDUCTION_MINUTES_PER_DAY must be positive")
	}
	if c.Deduction.LateGraceMinutes < 0 || c.Deduction.EarlyGraceMinutes < 0 {
		return fmt.Errorf("deduction grace minutes must not be negative")
	}
	if c.Deduction.Enabled && c.Deduction.LeaveType == "" {
		return fmt.Errorf("DEDUCTION_LEAVE_TYPE is required")
	}

	if !validator.IsInSlice(c.Import.Delimiter, []string{",", ";", "tab", "|"}) {
		return fmt.Errorf("IMPORT_DELIMITER must be one of , ; tab |")
	}
	if c.Import.DaysBack < 1 {
		return fmt.Errorf("IMPORT_DAYS_BACK must be at least 1")
	}
	if c.Device.Workers < 1 {
		return fmt.Errorf("DEVICE_SYNC_WORKERS must be at least 1")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Location loads the pipeline time zone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ClassifierConfig returns the thresholds for the status classifier.
func (c *Config) ClassifierConfig() attendance.ClassifierConfig {
	return attendance.ClassifierConfig{
		StandardMinutes:          c.Pipeline.StandardMinutes,
		OvertimeThresholdMinutes: c.Pipeline.OvertimeThresholdMinutes,
		LateGraceMinutes:         c.Pipeline.LateGraceMinutes,
		EarlyGraceMinutes:        c.Pipeline.EarlyGraceMinutes,
		ExpectedStart:            c.Pipeline.ExpectedStart,
		ExpectedEnd:              c.Pipeline.ExpectedEnd,
		Location:                 c.Location(),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(env string) []string {
	value := getEnv(env, "")
	if value == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

// envParser collects every malformed variable instead of stopping at the first.
type envParser struct {
	errs []error
}

func (p *envParser) int(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

func (p *envParser) bool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

func (p *envParser) duration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, fallback.String()))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

func (p *envParser) decimal(key, fallback string) decimal.Decimal {
	v, err := decimal.NewFromString(getEnv(key, fallback))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return decimal.RequireFromString(fallback)
	}
	return v
}

func (p *envParser) clock(key, fallback string) time.Duration {
	v, ok := validator.IsValidClock(getEnv(key, fallback))
	if !ok {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: want HH:MM", key))
		v, _ = validator.IsValidClock(fallback)
	}
	return v
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

func (p *envParser) weekdays(key, fallback string) []time.Weekday {
	var days []time.Weekday
	for _, name := range strings.Split(getEnv(key, fallback), ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		d, ok := weekdayNames[name]
		if !ok {
			p.errs = append(p.errs, fmt.Errorf("invalid %s: unknown weekday %q", key, name))
			continue
		}
		days = append(days, d)
	}
	return days
}
