// stats.go — обработчик GET /api/stats.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/iAdityaSharma2912/krazy-notesy/internal/api/errors"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/service"
)

// StatsHandler — агрегированная статистика хранилища.
type StatsHandler struct {
	media  *service.MediaService
	logger *slog.Logger
}

// NewStatsHandler создаёт обработчик статистики.
func NewStatsHandler(media *service.MediaService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		media:  media,
		logger: logger.With(slog.String("component", "stats_handler")),
	}
}

// GetStats обрабатывает GET /api/stats.
// Для пустого или отсутствующего хранилища — нули.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.media.Stats(r.Context())
	if err != nil {
		h.logger.Error("Ошибка подсчёта статистики", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось посчитать статистику")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
