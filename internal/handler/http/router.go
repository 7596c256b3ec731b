package http

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/cmlabs-hris/attendance-sync/internal/handler/http/middleware"
	"github.com/cmlabs-hris/attendance-sync/internal/handler/http/response"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
)

type RouterConfig struct {
	Env            string
	AllowedOrigins []string
	APIKeyHash     string
}

type Handlers struct {
	Attendance AttendanceHandler
	Device     DeviceHandler
	Overtime   OvertimeHandler
	Deduction  DeductionHandler
	Correction CorrectionHandler
}

func NewRouter(cfg RouterConfig, JWTService jwt.Service, h Handlers) *chi.Mux {
	r := chi.NewRouter()
	logFormat := httplog.SchemaECS.Concise(cfg.Env != "production")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "attendance-sync"),
		slog.String("version", "v1.0.0"),
		slog.String("env", cfg.Env),
	)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.APIKeyHeader},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	r.Route("/api/v1", func(r chi.Router) {

		// Machine-to-machine import surface
		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKeyRequired(cfg.APIKeyHash))

			r.With(chiMiddleware.AllowContentType("application/json")).Post("/attendance/import", h.Attendance.Import)
			r.With(chiMiddleware.AllowContentType("application/json")).Post("/attendance/import/bulk", h.Attendance.BulkImport)
			r.Post("/attendance/import/file", h.Attendance.ImportFile)
			r.Get("/devices/status", h.Device.Status)
		})

		// Any bearer token
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
			r.Use(middleware.AuthRequired(JWTService.JWTAuth()))
			r.Use(middleware.RequireActor)

			r.With(chiMiddleware.AllowContentType("application/json")).Post("/corrections", h.Correction.Create)
		})

		// Requires a manager bearer token
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
			r.Use(middleware.AuthRequired(JWTService.JWTAuth()))
			r.Use(middleware.RequireManager)

			r.Get("/attendance/days", h.Attendance.ListDays)
			r.Post("/attendance/reconcile", h.Attendance.Reconcile)
			r.Get("/attendance/rejected", h.Attendance.ListRejected)
			r.Post("/attendance/rejected/reprocess", h.Attendance.ReprocessRejected)
			r.Post("/attendance/imports/{batchID}/retry", h.Attendance.RetryImport)
			r.Post("/devices/sync", h.Device.SyncAll)
			r.Post("/devices/{id}/sync", h.Device.Sync)

			r.Route("/overtime", func(r chi.Router) {
				r.Get("/", h.Overtime.List)
				r.Post("/recompute", h.Overtime.Recompute)
				r.Post("/{id}/{action}", h.Overtime.Transition)
			})

			r.Get("/corrections", h.Correction.List)
			r.Post("/corrections/{id}/{action}", h.Correction.Review)

			r.Route("/deductions", func(r chi.Router) {
				r.Get("/", h.Deduction.List)
				r.Post("/{id}/{action}", h.Deduction.Review)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "Route not found")
	})
	return r
}
