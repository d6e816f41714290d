// Пакет gallery — клиентское представление списка медиафайлов:
// загрузка листинга, фильтр по категории, выбор и удаление подмножества.
package gallery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iAdityaSharma2912/krazy-notesy/internal/domain/model"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/mediaclient"
)

// Source — источник листинга и удаления. Реализуется *mediaclient.Client.
type Source interface {
	List(ctx context.Context, opts mediaclient.ListOptions) ([]model.MediaFile, error)
	Delete(ctx context.Context, ids []string) (int, error)
}

// Gallery — локальная копия листинга с выбором файлов.
type Gallery struct {
	source Source
	logger *slog.Logger

	mu       sync.Mutex
	files    []model.MediaFile
	selected map[string]struct{}
}

// New создаёт пустую галерею. Для загрузки листинга вызывается Refresh.
func New(source Source, logger *slog.Logger) *Gallery {
	return &Gallery{
		source:   source,
		logger:   logger.With(slog.String("component", "gallery")),
		selected: map[string]struct{}{},
	}
}

// Refresh загружает полный листинг с сервера и сбрасывает выбор.
// При ошибке прежнее состояние сохраняется.
func (g *Gallery) Refresh(ctx context.Context) error {
	files, err := g.source.List(ctx, mediaclient.ListOptions{})
	if err != nil {
		return fmt.Errorf("обновление галереи: %w", err)
	}

	g.mu.Lock()
	g.files = files
	g.selected = map[string]struct{}{}
	g.mu.Unlock()

	g.logger.Debug("Галерея обновлена", slog.Int("files", len(files)))
	return nil
}

// Files возвращает все файлы в порядке сервера (новые первыми).
func (g *Gallery) Files() []model.MediaFile {
	return g.Filter("")
}

// Filter возвращает файлы категории c; пустая категория — все файлы.
func (g *Gallery) Filter(c model.Category) []model.MediaFile {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]model.MediaFile, 0, len(g.files))
	for _, mf := range g.files {
		if c == "" || mf.Type == c {
			out = append(out, mf)
		}
	}
	return out
}

// Toggle инвертирует выбор файла и возвращает новое состояние.
// Файлы, отсутствующие в листинге, не выбираются.
func (g *Gallery) Toggle(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.selected[id]; ok {
		delete(g.selected, id)
		return false
	}
	for _, mf := range g.files {
		if mf.ID == id {
			g.selected[id] = struct{}{}
			return true
		}
	}
	return false
}

// Selected возвращает id выбранных файлов в порядке листинга.
func (g *Gallery) Selected() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(g.selected))
	for _, mf := range g.files {
		if _, ok := g.selected[mf.ID]; ok {
			ids = append(ids, mf.ID)
		}
	}
	return ids
}

// ClearSelection снимает выбор со всех файлов.
func (g *Gallery) ClearSelection() {
	g.mu.Lock()
	g.selected = map[string]struct{}{}
	g.mu.Unlock()
}

// DeleteSelected удаляет выбранные файлы одним запросом и обновляет листинг.
// Без выбора запрос не отправляется. Если удаление не удалось, выбор
// сохраняется; если не удалось только обновление, возвращается число
// удалённых файлов вместе с ошибкой.
func (g *Gallery) DeleteSelected(ctx context.Context) (int, error) {
	ids := g.Selected()
	if len(ids) == 0 {
		return 0, nil
	}

	deleted, err := g.source.Delete(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("удаление выбранных файлов: %w", err)
	}
	g.logger.Info("Выбранные файлы удалены",
		slog.Int("requested", len(ids)),
		slog.Int("deleted", deleted),
	)

	if err := g.Refresh(ctx); err != nil {
		return deleted, err
	}
	return deleted, nil
}
