// Точка входа медиа-API: загрузка, листинг, удаление и раздача файлов.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/iAdityaSharma2912/krazy-notesy/internal/api/handlers"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/api/middleware"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/api/openapi"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/config"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/server"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/service"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/storage/blobstore"
)

func main() {
	// Загрузка конфигурации из переменных окружения (и .env)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("Медиа-API запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("upload_dir", cfg.UploadDir),
		slog.Bool("auth_enabled", cfg.AuthEnabled()),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Медиа-API остановлен")
}

// run собирает компоненты и блокируется до завершения HTTP-сервера.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Хранилище
	store := blobstore.New(cfg.UploadDir)
	if err := store.EnsureRoot(); err != nil {
		return err
	}

	// 2. Сервисы
	cache := service.NewListingCache(cfg.ListCacheSize, cfg.ListCacheTTL)
	media := service.NewMediaService(store, cache, service.MediaOptions{
		MaxFileSize:      cfg.MaxFileSize,
		AllowedMIMETypes: cfg.AllowedMIMETypes,
	}, logger)
	schedule := service.NewScheduleService(logger)

	// 3. Фоновая очистка незавершённых загрузок
	sweeper := service.NewSweeper(store, cfg.SweepInterval, cfg.TmpMaxAge, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// 4. Аутентификация и мониторинг JWKS (только при MH_JWKS_URL)
	var (
		auth *middleware.JWTAuth
		deps handlers.DependencyHealth
	)
	if cfg.AuthEnabled() {
		var err error
		auth, err = middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			CACertPath:      cfg.CACertPath,
			TLSSkipVerify:   cfg.TLSSkipVerify,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			Rules: middleware.TokenRules{
				Leeway:   cfg.JWTLeeway,
				Audience: cfg.JWTAudience,
				Issuer:   cfg.JWTIssuer,
			},
		}, logger)
		if err != nil {
			return fmt.Errorf("инициализация JWT: %w", err)
		}
		logger.Info("JWT аутентификация настроена", slog.String("jwks_url", cfg.JWKSUrl))

		if dh := startDephealth(ctx, cfg, logger); dh != nil {
			defer dh.Stop()
			deps = dh
		}
	} else {
		logger.Warn("MH_JWKS_URL не задан, API доступен без аутентификации")
	}

	// 5. Проверка JSON-тел по OpenAPI
	validator, err := openapi.NewValidator(ctx)
	if err != nil {
		return err
	}

	// 6. Handlers и роутер
	h := server.Handlers{
		Files:    handlers.NewFilesHandler(media, store, cfg.PublicBaseURL, logger),
		Stats:    handlers.NewStatsHandler(media, logger),
		Schedule: handlers.NewScheduleHandler(schedule, logger),
		System:   handlers.NewSystemHandler(cfg, getDiskUsage, logger),
		Health:   handlers.NewHealthHandler(cfg.UploadDir, deps),
	}
	router := server.NewRouter(cfg, logger, h, server.RouterOptions{
		Auth:      auth,
		Validator: validator,
	})

	return server.New(cfg, logger, router).Run(ctx)
}

// startDephealth запускает мониторинг JWKS. Ошибка не фатальна:
// сервис работает без метрик зависимостей.
func startDephealth(ctx context.Context, cfg *config.Config, logger *slog.Logger) *service.DephealthService {
	dh, err := service.NewDephealthService(service.DephealthParams{
		ServiceID:     cfg.ServiceID,
		Group:         cfg.DephealthGroup,
		JWKSUrl:       cfg.JWKSUrl,
		CheckInterval: cfg.DephealthCheckInterval,
		TLSSkipVerify: cfg.TLSSkipVerify,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err := dh.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("topologymetrics запущен",
		slog.String("jwks_url", cfg.JWKSUrl),
		slog.String("check_interval", cfg.DephealthCheckInterval.String()),
	)
	return dh
}
