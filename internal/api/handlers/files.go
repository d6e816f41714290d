// files.go — HTTP handlers файловых операций: upload, list, delete
// и раздача загруженных файлов через /uploads/{id}.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/iAdityaSharma2912/krazy-notesy/internal/api/errors"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/domain/model"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/service"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/storage/blobstore"
)

// uploadField — имя multipart-поля с файлом.
const uploadField = "file"

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	media *service.MediaService
	store *blobstore.Store
	// publicBaseURL — внешний базовый URL (MH_PUBLIC_BASE_URL), может быть пустым
	publicBaseURL string
	logger        *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(
	media *service.MediaService,
	store *blobstore.Store,
	publicBaseURL string,
	logger *slog.Logger,
) *FilesHandler {
	return &FilesHandler{
		media:         media,
		store:         store,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger.With(slog.String("component", "files_handler")),
	}
}

// uploadResponse — тело ответа POST /api/upload.
type uploadResponse struct {
	Message string          `json:"message"`
	Data    model.MediaFile `json:"data"`
}

// deleteRequest — тело запроса POST /api/files/delete.
type deleteRequest struct {
	IDs []string `json:"ids"`
}

// deleteResponse — тело ответа POST /api/files/delete.
type deleteResponse struct {
	Message      string `json:"message"`
	DeletedCount int    `json:"deletedCount"`
}

// UploadFile обрабатывает POST /api/upload.
// Multipart читается потоково: первая часть с именем file и непустым
// filename пишется на диск, не буферизуясь в памяти целиком.
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		apierrors.NoFileProvided(w, "Файл не передан: ожидается multipart/form-data с полем file")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			apierrors.InvalidRequest(w, fmt.Sprintf("Ошибка чтения multipart: %s", err.Error()))
			return
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			part.Close()
			continue
		}

		mf, err := h.media.Upload(r.Context(), service.UploadParams{
			Reader:           part,
			OriginalFilename: part.FileName(),
		})
		part.Close()
		if err != nil {
			h.writeUploadError(w, err)
			return
		}

		mf.URL = h.fileURL(r, mf.ID)
		writeJSON(w, http.StatusCreated, uploadResponse{
			Message: "File uploaded successfully!",
			Data:    *mf,
		})
		return
	}

	apierrors.NoFileProvided(w, "Файл не передан: поле file отсутствует")
}

// writeUploadError сопоставляет ошибку загрузки с HTTP-ответом.
func (h *FilesHandler) writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrFileTooLarge):
		apierrors.FileTooLarge(w, "Размер файла превышает допустимый лимит")
	case errors.Is(err, service.ErrUnsupportedMediaType):
		apierrors.UnsupportedMediaType(w, err.Error())
	case errors.Is(err, blobstore.ErrStorageUnavailable):
		apierrors.StorageUnavailable(w, "Хранилище недоступно")
	case errors.Is(err, blobstore.ErrWriteFailed):
		apierrors.WriteFailed(w, "Ошибка сохранения файла на диск")
	default:
		h.logger.Error("Ошибка загрузки", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка при загрузке файла")
	}
}

// ListFiles обрабатывает GET /api/files.
// Опциональные параметры: type (pictures|shorts|videos), limit, offset.
func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	var (
		category *string
		limit    *int
		offset   *int
	)
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "type", query, &category); err != nil {
		apierrors.InvalidRequest(w, fmt.Sprintf("Некорректный параметр type: %s", err.Error()))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &limit); err != nil {
		apierrors.InvalidRequest(w, fmt.Sprintf("Некорректный параметр limit: %s", err.Error()))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", query, &offset); err != nil {
		apierrors.InvalidRequest(w, fmt.Sprintf("Некорректный параметр offset: %s", err.Error()))
		return
	}

	filter := service.ListFilter{}
	if category != nil && *category != "" {
		filter.Type = model.Category(*category)
		if !model.ValidCategory(filter.Type) {
			apierrors.InvalidRequest(w, "Параметр type должен быть одним из: pictures, shorts, videos")
			return
		}
	}
	if limit != nil {
		if *limit < 0 {
			apierrors.InvalidRequest(w, "Параметр limit не может быть отрицательным")
			return
		}
		filter.Limit = *limit
	}
	if offset != nil {
		if *offset < 0 {
			apierrors.InvalidRequest(w, "Параметр offset не может быть отрицательным")
			return
		}
		filter.Offset = *offset
	}

	files, err := h.media.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("Ошибка листинга", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось прочитать список файлов")
		return
	}

	// Срез из сервиса может быть общим с кэшем: URL проставляется в копии
	resp := make([]model.MediaFile, len(files))
	for i, mf := range files {
		mf.URL = h.fileURL(r, mf.ID)
		resp[i] = mf
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteFiles обрабатывает POST /api/files/delete.
// Тело {"ids": [...]} проверяется по OpenAPI-схеме до вызова handler.
func (h *FilesHandler) DeleteFiles(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.InvalidRequest(w, "Некорректный список файлов")
		return
	}
	if req.IDs == nil {
		apierrors.InvalidRequest(w, "Некорректный список файлов: поле ids обязательно")
		return
	}

	deleted, err := h.media.Delete(r.Context(), req.IDs)
	if err != nil {
		h.logger.Error("Ошибка удаления", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка при удалении файлов")
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{
		Message:      fmt.Sprintf("Deleted %d files successfully.", deleted),
		DeletedCount: deleted,
	})
}

// ServeUpload обрабатывает GET /uploads/{id}.
// Только чтение; Range и условные запросы обрабатывает http.ServeContent.
// Content-Type определяется по содержимому, а не по расширению. Всё, кроме
// растровых изображений, видео и аудио, отдаётся как attachment, и любой
// ответ изолирован CSP sandbox: загруженный HTML или SVG не исполняется
// в origin API.
func (h *FilesHandler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	f, info, err := h.store.Open(id)
	if err != nil {
		apierrors.NotFound(w, "Файл не найден")
		return
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		h.logger.Error("Ошибка чтения файла", slog.String("id", info.Name()), slog.String("error", err.Error()))
		apierrors.InternalError(w, "Не удалось прочитать файл")
		return
	}

	header := w.Header()
	header.Set("Content-Type", mt.String())
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set("Content-Security-Policy", "sandbox; default-src 'none'")
	if !inlineSafe(mt) {
		header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name()}))
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// inlineSafe — тип, который браузер не исполняет: изображения (кроме SVG),
// видео и аудио.
func inlineSafe(mt *mimetype.MIME) bool {
	if mt.Is("image/svg+xml") {
		return false
	}
	switch top, _, _ := strings.Cut(mt.String(), "/"); top {
	case "image", "video", "audio":
		return true
	}
	return false
}

// fileURL строит абсолютную ссылку на файл.
// Без MH_PUBLIC_BASE_URL схема и хост берутся из запроса,
// так что ссылка ведёт на тот же хост, что обслужил API-запрос.
func (h *FilesHandler) fileURL(r *http.Request, id string) string {
	base := h.publicBaseURL
	if base == "" {
		base = requestScheme(r) + "://" + r.Host
	}
	return base + "/uploads/" + url.PathEscape(id)
}

// requestScheme определяет схему запроса с учётом reverse proxy.
func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		proto, _, _ = strings.Cut(proto, ",")
		proto = strings.ToLower(strings.TrimSpace(proto))
		if proto == "http" || proto == "https" {
			return proto
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
