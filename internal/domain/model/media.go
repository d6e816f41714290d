// Пакет model — доменные модели медиа-сервиса.
// MediaFile — производное представление файла из директории загрузок.
// Отдельной записи о файле нет: всё вычисляется из состояния файловой системы.
package model

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Category — категория медиафайла для галереи.
type Category string

const (
	// CategoryPictures — изображения и всё, что не распознано как видео
	CategoryPictures Category = "pictures"
	// CategoryShorts — короткие видео (< ShortsThreshold)
	CategoryShorts Category = "shorts"
	// CategoryVideos — длинные видео (>= ShortsThreshold)
	CategoryVideos Category = "videos"
)

// ShortsThreshold — граница между shorts и videos (10 MiB).
// Видео размером ровно 10 MiB относится к videos.
const ShortsThreshold int64 = 10 * 1024 * 1024

// videoExtensions — расширения, которые считаются видео.
var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".avi": true,
	".mkv": true,
}

// storedNamePattern — формат имени, которое генерирует blobstore:
// {unixMillis}-{random}-{original}.
var storedNamePattern = regexp.MustCompile(`^\d+-\d+-(.+)$`)

// MediaFile — медиафайл в том виде, в котором его видит клиент.
type MediaFile struct {
	// ID — имя файла на диске
	ID string `json:"id"`
	// Name — санитизированное оригинальное имя
	Name string `json:"name"`
	// URL — абсолютная ссылка на статический файл, вычисляется на каждый запрос
	URL string `json:"url,omitempty"`
	// Type — категория (pictures, shorts, videos)
	Type Category `json:"type"`
	// Size — размер в байтах
	Size int64 `json:"size"`
	// Date — mtime файла, ключ сортировки
	Date time.Time `json:"date"`
	// MimeType — определённый по содержимому MIME-тип (только в ответе upload)
	MimeType string `json:"mimeType,omitempty"`
}

// Classify определяет категорию по имени файла и размеру.
// Чистая функция: результат никогда не сохраняется.
func Classify(name string, size int64) Category {
	ext := strings.ToLower(filepath.Ext(name))
	if !videoExtensions[ext] {
		return CategoryPictures
	}
	if size < ShortsThreshold {
		return CategoryShorts
	}
	return CategoryVideos
}

// ValidCategory проверяет, что строка — одна из известных категорий.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryPictures, CategoryShorts, CategoryVideos:
		return true
	}
	return false
}

// OriginalName восстанавливает оригинальное имя из имени на диске.
// Для файлов, положенных в директорию в обход сервиса, возвращает имя как есть.
func OriginalName(storedName string) string {
	if m := storedNamePattern.FindStringSubmatch(storedName); m != nil {
		return m[1]
	}
	return storedName
}

// NewMediaFile собирает MediaFile из имени и stat-информации.
func NewMediaFile(name string, size int64, modTime time.Time) MediaFile {
	return MediaFile{
		ID:   name,
		Name: OriginalName(name),
		Type: Classify(name, size),
		Size: size,
		Date: modTime,
	}
}

// FormatMegabytes форматирует размер как "X.XX MB" (1 MB = 1024*1024 байт).
func FormatMegabytes(size int64) string {
	return strconv.FormatFloat(float64(size)/(1024*1024), 'f', 2, 64) + " MB"
}
