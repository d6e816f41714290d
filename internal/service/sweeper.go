// sweeper.go — фоновая очистка временных файлов незавершённых загрузок.
//
// Оборванная загрузка оставляет {name}.tmp в директории хранения.
// Такие файлы не видны в листинге, но занимают место; sweeper удаляет
// те, что старше MH_TMP_MAX_AGE.
//
// Запускается как горутина с периодическим тикером (MH_SWEEP_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iAdityaSharma2912/krazy-notesy/internal/storage/blobstore"
)

// Prometheus метрики sweeper
var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mh_sweep_runs_total",
		Help: "Общее количество запусков очистки временных файлов",
	})

	sweepFilesRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mh_sweep_files_removed_total",
		Help: "Общее количество удалённых временных файлов",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mh_sweep_duration_seconds",
		Help:    "Длительность очистки временных файлов в секундах",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// SweepResult — результат одного запуска очистки.
type SweepResult struct {
	// Removed — количество удалённых временных файлов
	Removed int
	// Err — ошибка сканирования или удаления (nil при успехе)
	Err error
	// Duration — длительность выполнения
	Duration time.Duration
}

// Sweeper — сервис фоновой очистки *.tmp файлов.
type Sweeper struct {
	store    *blobstore.Store
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper создаёт sweeper.
func NewSweeper(
	store *blobstore.Store,
	interval time.Duration,
	maxAge time.Duration,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger.With(slog.String("component", "sweeper")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
// Вызывается один раз при старте приложения.
func (sw *Sweeper) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	sw.cancel = cancel
	sw.done = make(chan struct{})

	go sw.run(runCtx)

	sw.logger.Info("Очистка временных файлов запущена",
		slog.String("interval", sw.interval.String()),
		slog.String("max_age", sw.maxAge.String()),
	)
}

// Stop останавливает фоновую горутину и дожидается её завершения.
func (sw *Sweeper) Stop() {
	if sw.cancel == nil {
		return
	}
	sw.cancel()
	<-sw.done
	sw.logger.Info("Очистка временных файлов остановлена")
}

// run — основной цикл фоновой горутины.
func (sw *Sweeper) run(ctx context.Context) {
	defer close(sw.done)

	// Первый запуск — сразу после старта
	sw.RunOnce()

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл очистки.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
func (sw *Sweeper) RunOnce() *SweepResult {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	start := time.Now()
	removed, err := sw.store.SweepTemp(sw.maxAge)
	result := &SweepResult{
		Removed:  removed,
		Err:      err,
		Duration: time.Since(start),
	}

	sweepRunsTotal.Inc()
	sweepFilesRemovedTotal.Add(float64(removed))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	if err != nil {
		sw.logger.Error("Ошибка очистки временных файлов",
			slog.Int("removed", removed),
			slog.String("error", err.Error()),
		)
		return result
	}

	sw.logger.Debug("Очистка временных файлов завершена",
		slog.Int("removed", removed),
		slog.Duration("duration", result.Duration),
	)
	return result
}
