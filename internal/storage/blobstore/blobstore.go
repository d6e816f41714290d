// Пакет blobstore — хранение загруженных медиафайлов в локальной директории.
// Обеспечивает генерацию имён, streaming-запись через temp файл,
// листинг со stat-информацией и идемпотентное удаление.
package blobstore

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Ошибки хранилища.
var (
	// ErrStorageUnavailable — корневая директория отсутствует или недоступна.
	ErrStorageUnavailable = errors.New("хранилище недоступно")
	// ErrWriteFailed — ошибка ввода-вывода при записи файла.
	ErrWriteFailed = errors.New("ошибка записи файла")
	// ErrInvalidName — имя не может быть использовано как имя файла в хранилище.
	ErrInvalidName = errors.New("недопустимое имя файла")
)

// tmpSuffix — суффикс временных файлов незавершённой загрузки.
const tmpSuffix = ".tmp"

// whitespaceRun — любая последовательность пробельных символов.
var whitespaceRun = regexp.MustCompile(`\s+`)

// Entry — файл в хранилище со stat-информацией.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Store — директория с медиафайлами.
type Store struct {
	// root — корневая директория хранения (MH_UPLOAD_DIR)
	root string

	// writing — имена temp файлов, в которые сейчас идёт запись.
	// SweepTemp их не трогает, сколько бы ни длилась загрузка.
	writing sync.Map

	// now и randInt подменяются в тестах
	now     func() time.Time
	randInt func() int64
}

// New создаёт Store для директории root. Директория не создаётся:
// для этого вызывается EnsureRoot.
func New(root string) *Store {
	return &Store{
		root:    root,
		now:     time.Now,
		randInt: func() int64 { return rand.Int64N(1_000_000_000) },
	}
}

// Root возвращает путь к корневой директории.
func (s *Store) Root() string {
	return s.root
}

// EnsureRoot создаёт корневую директорию, если её нет. Идемпотентна.
func (s *Store) EnsureRoot() error {
	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return fmt.Errorf("%w: не удалось создать директорию %s: %v", ErrStorageUnavailable, s.root, err)
	}
	return nil
}

// GenerateName генерирует имя для хранения: {unixMillis}-{random}-{sanitized}.
// Коллизия не исключена полностью, только маловероятна: два вызова
// в одну миллисекунду с одинаковым случайным числом дадут одно имя.
func (s *Store) GenerateName(originalName string) string {
	return fmt.Sprintf("%d-%d-%s", s.now().UnixMilli(), s.randInt(), Sanitize(originalName))
}

// Sanitize приводит клиентское имя файла к безопасному виду:
// берётся basename, каждая последовательность пробелов заменяется на "_".
func Sanitize(originalName string) string {
	name := strings.ReplaceAll(originalName, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = whitespaceRun.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	// Имя с суффиксом .tmp было бы скрыто из листинга и удалено sweeper-ом
	if strings.HasSuffix(name, tmpSuffix) {
		name += "_"
	}
	return name
}

// Write записывает поток под именем name.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *Store) Write(name string, r io.Reader) (int64, error) {
	fullPath, err := s.path(name)
	if err != nil {
		return 0, err
	}
	tmpPath := fullPath + tmpSuffix
	tmpName := filepath.Base(tmpPath)
	s.writing.Store(tmpName, struct{}{})
	defer s.writing.Delete(tmpName)

	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("%w: создание временного файла: %v", ErrWriteFailed, err)
	}

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: запись данных: %w", ErrWriteFailed, err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: fsync: %v", ErrWriteFailed, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: закрытие файла: %v", ErrWriteFailed, err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: атомарное переименование: %v", ErrWriteFailed, err)
	}

	return size, nil
}

// List возвращает файлы хранилища со stat-информацией.
// Скрытые файлы, директории и незавершённые загрузки (*.tmp) пропускаются.
// Если корневой директории нет — ErrStorageUnavailable.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: чтение директории %s: %v", ErrStorageUnavailable, s.root, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !isListable(de.Name()) || !de.Type().IsRegular() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Файл удалён между ReadDir и Stat
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return entries, nil
}

// Remove удаляет файл. name сводится к basename до склейки с root,
// поэтому "../../etc/passwd" превращается в "passwd" внутри хранилища.
// Отсутствие файла — не ошибка: возвращается removed=false.
func (s *Store) Remove(name string) (removed bool, err error) {
	fullPath, err := s.path(name)
	if err != nil {
		return false, nil
	}

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("удаление файла %s: %w", filepath.Base(fullPath), err)
	}
	return true, nil
}

// Open открывает файл на чтение вместе со stat-информацией.
// Вызывающий код обязан закрыть файл.
func (s *Store) Open(name string) (*os.File, os.FileInfo, error) {
	fullPath, err := s.path(name)
	if err != nil {
		return nil, nil, os.ErrNotExist
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, os.ErrNotExist
	}
	return f, info, nil
}

// Stat возвращает stat-информацию файла хранилища.
// Для недопустимых имён и не-регулярных файлов — os.ErrNotExist.
func (s *Store) Stat(name string) (Entry, error) {
	fullPath, err := s.path(name)
	if err != nil {
		return Entry{}, os.ErrNotExist
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return Entry{}, err
	}
	if !info.Mode().IsRegular() {
		return Entry{}, os.ErrNotExist
	}
	return Entry{Name: info.Name(), Size: info.Size(), ModTime: info.ModTime()}, nil
}

// SweepTemp удаляет временные файлы незавершённых загрузок старше maxAge.
// Файлы, в которые этот Store пишет прямо сейчас, пропускаются.
// Возвращает количество удалённых файлов.
func (s *Store) SweepTemp(maxAge time.Duration) (int, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("чтение директории %s: %w", s.root, err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, de := range dirEntries {
		if !strings.HasSuffix(de.Name(), tmpSuffix) || !de.Type().IsRegular() {
			continue
		}
		if _, active := s.writing.Load(de.Name()); active {
			continue
		}
		info, err := de.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, de.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// path сводит name к basename и склеивает с root.
// Скрытые и временные имена недопустимы.
func (s *Store) path(name string) (string, error) {
	base := filepath.Base(name)
	if !isListable(base) || base == "/" || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.root, base), nil
}

// isListable — имя видно клиентам: не скрытое и не временное.
func isListable(name string) bool {
	return name != "" && !strings.HasPrefix(name, ".") && !strings.HasSuffix(name, tmpSuffix)
}
