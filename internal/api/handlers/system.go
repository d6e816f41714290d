// system.go — обработчики GET /api/info и GET /api/openapi.yaml.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iAdityaSharma2912/krazy-notesy/internal/api/openapi"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/config"
)

// DiskUsageFunc возвращает ёмкость файловой системы, на которой
// находится path: total, used, available в байтах.
type DiskUsageFunc func(path string) (total, used, available int64, err error)

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	cfg       *config.Config
	diskUsage DiskUsageFunc
	logger    *slog.Logger
}

// NewSystemHandler создаёт обработчик системных endpoints.
// diskUsage может быть nil: тогда поле disk в ответе отсутствует.
func NewSystemHandler(cfg *config.Config, diskUsage DiskUsageFunc, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{
		cfg:       cfg,
		diskUsage: diskUsage,
		logger:    logger.With(slog.String("component", "system_handler")),
	}
}

// diskInfo — ёмкость диска директории загрузок.
type diskInfo struct {
	Total     int64 `json:"total"`
	Used      int64 `json:"used"`
	Available int64 `json:"available"`
}

// infoResponse — тело ответа GET /api/info.
type infoResponse struct {
	Service     string    `json:"service"`
	Version     string    `json:"version"`
	UploadDir   string    `json:"uploadDir"`
	AuthEnabled bool      `json:"authEnabled"`
	Disk        *diskInfo `json:"disk,omitempty"`
}

// GetInfo обрабатывает GET /api/info. Без аутентификации.
func (h *SystemHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	resp := infoResponse{
		Service:     serviceName,
		Version:     config.Version,
		UploadDir:   h.cfg.UploadDir,
		AuthEnabled: h.cfg.AuthEnabled(),
	}

	if h.diskUsage != nil {
		total, used, available, err := h.diskUsage(h.cfg.UploadDir)
		if err != nil {
			h.logger.Warn("Не удалось получить ёмкость диска", slog.String("error", err.Error()))
		} else {
			resp.Disk = &diskInfo{Total: total, Used: used, Available: available}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetOpenAPI обрабатывает GET /api/openapi.yaml.
func (h *SystemHandler) GetOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Spec())
}
