// schedule.go — обработчик POST /api/schedule/create.
// Заявка принимается и логируется; исполнения и хранения нет.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/iAdityaSharma2912/krazy-notesy/internal/api/errors"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/api/middleware"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/service"
)

// ScheduleHandler — приём заявок на публикацию.
type ScheduleHandler struct {
	schedule *service.ScheduleService
	logger   *slog.Logger
}

// NewScheduleHandler создаёт обработчик заявок.
func NewScheduleHandler(schedule *service.ScheduleService, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		schedule: schedule,
		logger:   logger.With(slog.String("component", "schedule_handler")),
	}
}

// scheduleResponse — тело ответа на заявку.
type scheduleResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	JobID   openapi_types.UUID `json:"jobId"`
}

// CreateSchedule обрабатывает POST /api/schedule/create.
func (h *ScheduleHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var job service.ScheduleJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		apierrors.InvalidRequest(w, "Некорректное тело заявки: ожидается JSON-объект")
		return
	}

	receipt, err := h.schedule.Accept(r.Context(), job)
	if err != nil {
		h.logger.Error("Ошибка приёма заявки", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось принять заявку")
		return
	}

	if sub := middleware.SubjectFromContext(r.Context()); sub != "" {
		h.logger.Debug("Заявка от пользователя",
			slog.String("job_id", receipt.JobID.String()),
			slog.String("subject", sub),
		)
	}

	writeJSON(w, http.StatusOK, scheduleResponse{
		Success: true,
		Message: "Job received. Scheduling is not executed by this server.",
		JobID:   receipt.JobID,
	})
}
