// schedule.go — приём заявок на публикацию.
//
// Планировщика нет: заявка проверяется, получает идентификатор,
// записывается в лог и подтверждается. Ни хранения, ни исполнения.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var scheduleJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mh_schedule_jobs_total",
	Help: "Количество принятых заявок на публикацию по типу расписания.",
}, []string{"schedule_type"})

// ScheduleJob — заявка на публикацию, как её присылает дашборд.
// Неизвестные поля допускаются и игнорируются.
type ScheduleJob struct {
	ScheduleType      string   `json:"scheduleType,omitempty"`
	DateTime          string   `json:"dateTime,omitempty"`
	Time              string   `json:"time,omitempty"`
	SelectedPlatforms []string `json:"selectedPlatforms,omitempty"`
	SelectedFileIDs   []string `json:"selectedFileIds,omitempty"`
	Caption           string   `json:"caption,omitempty"`
	MinDelayHours     *float64 `json:"minDelayHours,omitempty"`
}

// ScheduleReceipt — подтверждение приёма заявки.
type ScheduleReceipt struct {
	JobID      uuid.UUID
	AcceptedAt time.Time
}

// ScheduleService — приём заявок на публикацию.
type ScheduleService struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewScheduleService создаёт сервис приёма заявок.
func NewScheduleService(logger *slog.Logger) *ScheduleService {
	return &ScheduleService{
		logger: logger.With(slog.String("component", "schedule_service")),
		now:    time.Now,
	}
}

// Accept регистрирует заявку: присваивает идентификатор и пишет её в лог.
func (s *ScheduleService) Accept(ctx context.Context, job ScheduleJob) (*ScheduleReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	receipt := &ScheduleReceipt{
		JobID:      uuid.New(),
		AcceptedAt: s.now().UTC(),
	}

	scheduleType := job.ScheduleType
	if scheduleType == "" {
		scheduleType = "unspecified"
	}
	scheduleJobsTotal.WithLabelValues(scheduleType).Inc()

	attrs := []any{
		slog.String("job_id", receipt.JobID.String()),
		slog.String("schedule_type", scheduleType),
		slog.Any("platforms", job.SelectedPlatforms),
		slog.Int("files", len(job.SelectedFileIDs)),
		slog.Int("caption_len", len([]rune(job.Caption))),
	}
	if job.DateTime != "" {
		attrs = append(attrs, slog.String("date_time", job.DateTime))
	}
	if job.Time != "" {
		attrs = append(attrs, slog.String("time", job.Time))
	}
	if job.MinDelayHours != nil {
		attrs = append(attrs, slog.Float64("min_delay_hours", *job.MinDelayHours))
	}
	s.logger.Info("Заявка на публикацию принята", attrs...)

	return receipt, nil
}
