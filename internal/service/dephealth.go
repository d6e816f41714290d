// dephealth.go — мониторинг JWKS endpoint через topologymetrics.
// Работает только при включённой аутентификации. Метрики
// app_dependency_* публикуются на /metrics.
package service

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // HTTP checker factory
)

// jwksDependency — имя зависимости в метриках и в Health().
const jwksDependency = "jwks"

// DephealthParams — параметры мониторинга (MH_SERVICE_ID, MH_DEPHEALTH_GROUP,
// MH_JWKS_URL, MH_DEPHEALTH_CHECK_INTERVAL, MH_TLS_SKIP_VERIFY).
type DephealthParams struct {
	ServiceID     string
	Group         string
	JWKSUrl       string
	CheckInterval time.Duration
	TLSSkipVerify bool
}

// DephealthService — периодическая проверка внешних зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// jwksDependencyOptions — проверка GET по пути самого JWKS документа:
// корень хоста провайдера обычно отвечает редиректом или 404.
func jwksDependencyOptions(params DephealthParams) []dephealth.DependencyOption {
	opts := []dephealth.DependencyOption{
		dephealth.FromURL(params.JWKSUrl),
		dephealth.CheckInterval(params.CheckInterval),
		dephealth.Critical(true),
		dephealth.WithHTTPTLSSkipVerify(params.TLSSkipVerify),
	}
	if u, err := url.Parse(params.JWKSUrl); err == nil && u.Path != "" && u.Path != "/" {
		opts = append(opts, dephealth.WithHTTPHealthPath(u.Path))
	}
	return opts
}

// NewDephealthService создаёт сервис мониторинга. Без extra метрики
// регистрируются в глобальном Prometheus registry; тесты передают
// dephealth.WithRegisterer со своим registry.
func NewDephealthService(params DephealthParams, logger *slog.Logger, extra ...dephealth.Option) (*DephealthService, error) {
	opts := append([]dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.HTTP(jwksDependency, jwksDependencyOptions(params)...),
	}, extra...)

	dh, err := dephealth.New(params.ServiceID, params.Group, opts...)
	if err != nil {
		return nil, err
	}
	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает проверки.
func (ds *DephealthService) Start(ctx context.Context) error {
	if err := ds.dh.Start(ctx); err != nil {
		return err
	}
	ds.logger.Info("Мониторинг JWKS запущен")
	return nil
}

// Stop останавливает проверки.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг JWKS остановлен")
}

// Health — состояние зависимостей: ключ "jwks:<host>:<port>", true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
