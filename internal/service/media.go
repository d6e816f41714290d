// media.go — сервис медиафайлов: загрузка, листинг, удаление, статистика.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iAdityaSharma2912/krazy-notesy/internal/domain/model"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/storage/blobstore"
)

// Ошибки сервиса, не покрытые ошибками blobstore.
var (
	// ErrFileTooLarge — поток превысил MaxFileSize.
	ErrFileTooLarge = errors.New("файл превышает допустимый размер")
	// ErrUnsupportedMediaType — тип содержимого не входит в allow-list.
	ErrUnsupportedMediaType = errors.New("тип содержимого не разрешён")
)

// Prometheus-метрики операций с файлами.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mh_uploads_total",
		Help: "Общее количество загруженных файлов по категориям.",
	}, []string{"type"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mh_upload_bytes_total",
		Help: "Общий объём загруженных данных в байтах.",
	})

	uploadRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mh_upload_rejected_total",
		Help: "Количество отклонённых загрузок по причинам.",
	}, []string{"reason"})

	filesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mh_files_deleted_total",
		Help: "Общее количество удалённых файлов.",
	})
)

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalFilename — имя файла из multipart part
	OriginalFilename string
}

// ListFilter — фильтр и окно листинга. Нулевое значение — все файлы.
type ListFilter struct {
	// Type — категория (пусто — все)
	Type model.Category
	// Limit — максимальное количество записей (0 — без ограничения)
	Limit int
	// Offset — смещение от начала отсортированного списка
	Offset int
}

// Stats — агрегированная статистика хранилища.
type Stats struct {
	TotalMedia     int    `json:"totalMedia"`
	TotalSizeBytes int64  `json:"totalSizeBytes"`
	TotalSize      string `json:"totalSize"`
	// ActivePosts и Engagement — фиксированные значения:
	// реальных публикаций и аналитики нет.
	ActivePosts int    `json:"activePosts"`
	Engagement  string `json:"engagement"`
}

// MediaOptions — ограничения загрузки.
type MediaOptions struct {
	// MaxFileSize — лимит размера файла в байтах (0 — без ограничения)
	MaxFileSize int64
	// AllowedMIMETypes — префиксы допустимых MIME-типов (пусто — любой)
	AllowedMIMETypes []string
}

// MediaService — операции над директорией загрузок.
// Межзапросных блокировок нет: листинг может как включить, так и
// пропустить файл, который параллельно загружается или удаляется.
type MediaService struct {
	store  *blobstore.Store
	cache  *ListingCache
	opts   MediaOptions
	logger *slog.Logger
}

// NewMediaService создаёт сервис медиафайлов. cache может быть nil.
func NewMediaService(
	store *blobstore.Store,
	cache *ListingCache,
	opts MediaOptions,
	logger *slog.Logger,
) *MediaService {
	return &MediaService{
		store:  store,
		cache:  cache,
		opts:   opts,
		logger: logger.With(slog.String("component", "media_service")),
	}
}

// Upload сохраняет файл под сгенерированным именем.
//
// Поток:
//  1. Ограничение размера (если задано)
//  2. Определение MIME-типа по заголовку содержимого
//  3. Проверка allow-list
//  4. Streaming-запись через blobstore
//
// Ошибки: ErrFileTooLarge, ErrUnsupportedMediaType,
// blobstore.ErrStorageUnavailable, blobstore.ErrWriteFailed.
func (s *MediaService) Upload(ctx context.Context, params UploadParams) (*model.MediaFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := params.Reader
	if s.opts.MaxFileSize > 0 {
		r = &limitedReader{r: r, remaining: s.opts.MaxFileSize}
	}

	mimeType, r, err := sniffContent(r)
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			uploadRejectedTotal.WithLabelValues("too_large").Inc()
			return nil, ErrFileTooLarge
		}
		return nil, fmt.Errorf("%w: чтение заголовка: %w", blobstore.ErrWriteFailed, err)
	}

	if !mimeAllowed(mimeType, s.opts.AllowedMIMETypes) {
		uploadRejectedTotal.WithLabelValues("mime_type").Inc()
		s.logger.Info("Загрузка отклонена: недопустимый тип",
			slog.String("filename", params.OriginalFilename),
			slog.String("mime_type", mimeType),
		)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mimeType)
	}

	name := s.store.GenerateName(params.OriginalFilename)
	size, err := s.store.Write(name, r)
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			uploadRejectedTotal.WithLabelValues("too_large").Inc()
			return nil, ErrFileTooLarge
		}
		s.logger.Error("Ошибка сохранения файла",
			slog.String("filename", params.OriginalFilename),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	s.cache.Purge()

	entry, err := s.store.Stat(name)
	if err != nil {
		// Файл удалён сразу после записи; mtime неизвестен
		return nil, fmt.Errorf("%w: stat после записи: %w", blobstore.ErrWriteFailed, err)
	}

	mf := model.NewMediaFile(name, size, entry.ModTime)
	mf.MimeType = mimeType

	uploadsTotal.WithLabelValues(string(mf.Type)).Inc()
	uploadBytesTotal.Add(float64(size))

	s.logger.Info("Файл загружен",
		slog.String("id", mf.ID),
		slog.String("type", string(mf.Type)),
		slog.Int64("size", mf.Size),
		slog.String("mime_type", mimeType),
	)
	return &mf, nil
}

// List возвращает файлы, отсортированные по mtime (новые первыми),
// при равном mtime — по id в обратном порядке.
// Отсутствующая директория — пустой список, не ошибка.
func (s *MediaService) List(ctx context.Context, filter ListFilter) ([]model.MediaFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := filter.cacheKey()
	if files, ok := s.cache.Get(key); ok {
		return files, nil
	}
	// Поколение берётся до чтения директории: Purge от параллельной
	// записи после этой точки не даст сохранить устаревший листинг.
	gen := s.cache.Generation()

	all, err := s.listAll()
	if err != nil {
		return nil, err
	}

	files := make([]model.MediaFile, 0, len(all))
	for _, mf := range all {
		if filter.Type != "" && mf.Type != filter.Type {
			continue
		}
		files = append(files, mf)
	}
	files = window(files, filter.Offset, filter.Limit)

	s.cache.Set(key, files, gen)
	return files, nil
}

// Delete удаляет файлы по id. Каждый id сводится к basename.
// Отсутствующие файлы пропускаются; ошибки по отдельным id логируются
// и не прерывают обработку остальных. Отката частичного удаления нет.
// Возвращает количество фактически удалённых файлов.
func (s *MediaService) Delete(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		removed, err := s.store.Remove(id)
		if err != nil {
			s.logger.Warn("Ошибка удаления файла",
				slog.String("id", filepath.Base(id)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if removed {
			deleted++
		}
	}

	if deleted > 0 {
		s.cache.Purge()
		filesDeletedTotal.Add(float64(deleted))
	}

	s.logger.Info("Удаление файлов",
		slog.Int("requested", len(ids)),
		slog.Int("deleted", deleted),
	)
	return deleted, nil
}

// Stats считает количество и суммарный размер файлов.
// Для отсутствующей директории — нули.
func (s *MediaService) Stats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all, err := s.listAll()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalMedia:  len(all),
		ActivePosts: 0,
		Engagement:  "0",
	}
	for _, mf := range all {
		stats.TotalSizeBytes += mf.Size
	}
	stats.TotalSize = model.FormatMegabytes(stats.TotalSizeBytes)
	return stats, nil
}

// listAll читает директорию и строит отсортированный список MediaFile.
func (s *MediaService) listAll() ([]model.MediaFile, error) {
	entries, err := s.store.List()
	if err != nil {
		if errors.Is(err, blobstore.ErrStorageUnavailable) {
			s.logger.Debug("Директория загрузок недоступна, листинг пуст",
				slog.String("error", err.Error()),
			)
			return []model.MediaFile{}, nil
		}
		return nil, err
	}

	files := make([]model.MediaFile, 0, len(entries))
	for _, e := range entries {
		files = append(files, model.NewMediaFile(e.Name, e.Size, e.ModTime))
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].Date.Equal(files[j].Date) {
			return files[i].Date.After(files[j].Date)
		}
		return files[i].ID > files[j].ID
	})
	return files, nil
}

// cacheKey — ключ кэша листинга для фильтра.
func (f ListFilter) cacheKey() string {
	return fmt.Sprintf("%s|%d|%d", f.Type, f.Limit, f.Offset)
}

// window применяет offset/limit к срезу.
func window(files []model.MediaFile, offset, limit int) []model.MediaFile {
	if offset > 0 {
		if offset >= len(files) {
			return []model.MediaFile{}
		}
		files = files[offset:]
	}
	if limit > 0 && limit < len(files) {
		files = files[:limit]
	}
	return files
}

// limitedReader возвращает ErrFileTooLarge, как только из источника
// прочитано больше remaining байт.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrFileTooLarge
	}
	// Читаем на байт больше лимита, чтобы отличить «ровно лимит» от превышения
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return 0, ErrFileTooLarge
	}
	return n, err
}
