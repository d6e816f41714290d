// health.go — liveness и readiness probes.
package handlers

import (
	"net/http"
	"os"
	"time"

	"github.com/iAdityaSharma2912/krazy-notesy/internal/config"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// serviceName — имя сервиса в ответах health и info.
const serviceName = "krazy-notesy-media"

// DependencyHealth — состояние внешних зависимостей (DephealthService):
// имя зависимости → true, если доступна.
type DependencyHealth interface {
	Health() map[string]bool
}

type componentCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type readyChecks struct {
	Filesystem   componentCheck  `json:"filesystem"`
	Dependencies map[string]bool `json:"dependencies,omitempty"`
}

type probeResponse struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	Version   string       `json:"version"`
	Service   string       `json:"service"`
	Checks    *readyChecks `json:"checks,omitempty"`
}

// HealthHandler обслуживает /health/live и /health/ready.
type HealthHandler struct {
	version   string
	uploadDir string
	deps      DependencyHealth // nil без аутентификации
	now       func() time.Time
}

// NewHealthHandler создаёт обработчик probes. deps может быть nil.
func NewHealthHandler(uploadDir string, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{
		version:   config.Version,
		uploadDir: uploadDir,
		deps:      deps,
		now:       time.Now,
	}
}

func (h *HealthHandler) probe(status string) probeResponse {
	return probeResponse{
		Status:    status,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Service:   serviceName,
	}
}

// HealthLive — GET /health/live. Зависимости не проверяются.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.probe(statusOK))
}

// HealthReady — GET /health/ready.
// Директория загрузок недоступна на запись → 503 fail.
// Недоступная зависимость → 200 degraded: загрузки и листинг
// продолжают работать, страдает только проверка токенов.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	checks := &readyChecks{Filesystem: h.checkFilesystem()}
	resp := h.probe(statusOK)
	resp.Checks = checks
	code := http.StatusOK

	if h.deps != nil {
		checks.Dependencies = h.deps.Health()
		for _, ok := range checks.Dependencies {
			if !ok {
				resp.Status = statusDegraded
			}
		}
	}
	if checks.Filesystem.Status != statusOK {
		resp.Status = statusFail
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, resp)
}

// checkFilesystem создаёт и удаляет скрытый временный файл в директории
// загрузок. Скрытые файлы не видны в листинге и не раздаются.
func (h *HealthHandler) checkFilesystem() componentCheck {
	f, err := os.CreateTemp(h.uploadDir, ".health-*")
	if err != nil {
		return componentCheck{Status: statusFail, Message: "Директория загрузок недоступна для записи: " + err.Error()}
	}
	name := f.Name()
	f.Close()
	_ = os.Remove(name)
	return componentCheck{Status: statusOK}
}
