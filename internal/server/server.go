// Пакет server — HTTP-сервер медиа-API с CORS, опциональным TLS
// и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apierrors "github.com/iAdityaSharma2912/krazy-notesy/internal/api/errors"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/api/handlers"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/api/middleware"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/api/openapi"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/config"
)

// Handlers — доменные обработчики, монтируемые в роутер.
type Handlers struct {
	Files    *handlers.FilesHandler
	Stats    *handlers.StatsHandler
	Schedule *handlers.ScheduleHandler
	System   *handlers.SystemHandler
	Health   *handlers.HealthHandler
}

// RouterOptions — необязательные компоненты роутера.
type RouterOptions struct {
	// Auth — JWT middleware; nil означает публичный API
	Auth *middleware.JWTAuth
	// Validator — проверка JSON-тел по OpenAPI; nil отключает проверку
	Validator *openapi.Validator
}

// NewRouter собирает chi-роутер со всеми маршрутами.
//
// Публичные: /health/*, /metrics, /api/info, /api/openapi.yaml, /uploads/{id}.
// При включённой аутентификации остальные /api/* требуют JWT,
// изменяющие операции — scope media:write.
func NewRouter(cfg *config.Config, logger *slog.Logger, h Handlers, opts RouterOptions) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Range", middleware.HeaderRequestID},
		ExposedHeaders: []string{"Content-Length", "Content-Range", "Accept-Ranges", middleware.HeaderRequestID},
		MaxAge:         300,
	}))

	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.NotFound(w, "Маршрут не найден")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.MethodNotAllowed(w, "Метод не поддерживается")
	})

	// Probes и метрики
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())

	// Статическая раздача загруженных файлов
	router.Get("/uploads/{id}", h.Files.ServeUpload)
	router.Head("/uploads/{id}", h.Files.ServeUpload)

	router.Get("/api/info", h.System.GetInfo)
	router.Get("/api/openapi.yaml", h.System.GetOpenAPI)

	router.Group(func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth.Middleware())
		}

		r.Get("/api/files", h.Files.ListFiles)
		r.Get("/api/stats", h.Stats.GetStats)

		r.Group(func(r chi.Router) {
			if opts.Auth != nil {
				r.Use(middleware.RequireScope(middleware.ScopeWrite))
			}
			if opts.Validator != nil {
				r.Use(opts.Validator.Middleware())
			}

			r.Post("/api/upload", h.Files.UploadFile)
			r.Post("/api/files/delete", h.Files.DeleteFiles)
			r.Post("/api/schedule/create", h.Schedule.CreateSchedule)
		})
	})

	return router
}

// Server — HTTP-сервер медиа-API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер поверх готового handler (NewRouter).
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	if cfg.TLSEnabled() {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown с MH_SHUTDOWN_TIMEOUT.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSEnabled()),
		)

		var err error
		if s.cfg.TLSEnabled() {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
