// Пакет uploader — клиентская очередь загрузки файлов.
// Каждый элемент проходит статусы queued → uploading → success|error
// строго в одном направлении; повторных попыток нет.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iAdityaSharma2912/krazy-notesy/internal/domain/model"
)

// Status — состояние элемента очереди.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// Uploader — транспорт загрузки. Реализуется *mediaclient.Client.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*model.MediaFile, error)
}

// File — источник данных для загрузки.
type File struct {
	Name string
	Size int64
	// Open вызывается в момент загрузки, а не постановки в очередь
	Open func() (io.ReadCloser, error)
}

// FromPath описывает файл на локальном диске.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	if !info.Mode().IsRegular() {
		return File{}, fmt.Errorf("%s: не является обычным файлом", path)
	}
	return File{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// Item — снимок элемента очереди.
type Item struct {
	ID        uuid.UUID
	Name      string
	Size      int64
	Status    Status
	Result    *model.MediaFile
	Error     string
	UpdatedAt time.Time
}

// Options — параметры агента.
type Options struct {
	// Concurrency — число одновременных загрузок в UploadAll (по умолчанию 1)
	Concurrency int
	// OnChange вызывается при каждой смене статуса, вне блокировки агента
	OnChange func(Item)
}

// item — элемент очереди с источником данных.
type item struct {
	Item
	file File
}

// Agent — очередь загрузки.
type Agent struct {
	client Uploader
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	items []*item
	wg    sync.WaitGroup
}

// New создаёт агент загрузки поверх client.
func New(client Uploader, opts Options, logger *slog.Logger) *Agent {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Agent{
		client: client,
		opts:   opts,
		logger: logger.With(slog.String("component", "upload_agent")),
	}
}

// Enqueue добавляет файлы в очередь со статусом queued и возвращает их id.
// Если передан ровно один файл, его загрузка сразу стартует в фоне;
// для нескольких файлов нужен явный вызов UploadAll.
func (a *Agent) Enqueue(ctx context.Context, files ...File) []uuid.UUID {
	now := time.Now()
	added := make([]*item, 0, len(files))
	ids := make([]uuid.UUID, 0, len(files))

	a.mu.Lock()
	for _, f := range files {
		it := &item{
			Item: Item{
				ID:        uuid.New(),
				Name:      f.Name,
				Size:      f.Size,
				Status:    StatusQueued,
				UpdatedAt: now,
			},
			file: f,
		}
		a.items = append(a.items, it)
		added = append(added, it)
		ids = append(ids, it.ID)
	}
	a.mu.Unlock()

	for _, it := range added {
		a.notify(it.Item)
	}

	if len(added) == 1 && a.claim(added[0]) {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			_ = a.upload(ctx, added[0])
		}()
	}
	return ids
}

// UploadAll загружает все элементы в статусе queued в порядке очереди.
// При Concurrency 1 каждая загрузка дожидается завершения предыдущей.
// Ошибка одного файла не останавливает остальные; возвращаются
// все ошибки, объединённые через errors.Join.
func (a *Agent) UploadAll(ctx context.Context) error {
	a.mu.Lock()
	pending := make([]*item, 0, len(a.items))
	for _, it := range a.items {
		if it.Status == StatusQueued {
			pending = append(pending, it)
		}
	}
	a.mu.Unlock()

	a.logger.Info("Загрузка очереди",
		slog.Int("files", len(pending)),
		slog.Int("concurrency", a.opts.Concurrency),
	)

	var (
		errsMu sync.Mutex
		errs   []error
	)
	collect := func(err error) {
		if err != nil {
			errsMu.Lock()
			errs = append(errs, err)
			errsMu.Unlock()
		}
	}

	if a.opts.Concurrency == 1 {
		for _, it := range pending {
			if a.claim(it) {
				collect(a.upload(ctx, it))
			}
		}
		return errors.Join(errs...)
	}

	var g errgroup.Group
	g.SetLimit(a.opts.Concurrency)
	for _, it := range pending {
		if !a.claim(it) {
			continue
		}
		g.Go(func() error {
			collect(a.upload(ctx, it))
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Clear очищает очередь. Загрузки в процессе не отменяются,
// но их результат в очередь уже не попадает.
func (a *Agent) Clear() {
	a.mu.Lock()
	n := len(a.items)
	a.items = nil
	a.mu.Unlock()

	a.logger.Debug("Очередь очищена", slog.Int("items", n))
}

// Wait блокируется до завершения фоновых загрузок, начатых Enqueue.
func (a *Agent) Wait() {
	a.wg.Wait()
}

// Items возвращает снимок очереди в порядке добавления.
func (a *Agent) Items() []Item {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Item, len(a.items))
	for i, it := range a.items {
		out[i] = it.Item
	}
	return out
}

// claim переводит элемент из queued в uploading.
// false — элемент уже забран другой загрузкой.
func (a *Agent) claim(it *item) bool {
	a.mu.Lock()
	if it.Status != StatusQueued {
		a.mu.Unlock()
		return false
	}
	it.Status = StatusUploading
	it.UpdatedAt = time.Now()
	snapshot := it.Item
	a.mu.Unlock()

	a.notify(snapshot)
	return true
}

// upload загружает забранный элемент и фиксирует итоговый статус.
func (a *Agent) upload(ctx context.Context, it *item) error {
	mf, err := a.send(ctx, it.file)

	a.mu.Lock()
	it.UpdatedAt = time.Now()
	if err != nil {
		it.Status = StatusError
		it.Error = err.Error()
	} else {
		it.Status = StatusSuccess
		it.Result = mf
	}
	snapshot := it.Item
	a.mu.Unlock()

	a.notify(snapshot)

	if err != nil {
		a.logger.Warn("Ошибка загрузки файла",
			slog.String("name", it.file.Name),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%s: %w", it.file.Name, err)
	}
	a.logger.Info("Файл загружен",
		slog.String("name", it.file.Name),
		slog.String("id", mf.ID),
	)
	return nil
}

// send открывает источник и передаёт его транспорту.
func (a *Agent) send(ctx context.Context, f File) (*model.MediaFile, error) {
	if f.Open == nil {
		return nil, errors.New("источник данных не задан")
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("открытие файла: %w", err)
	}
	defer rc.Close()

	return a.client.Upload(ctx, f.Name, rc)
}

func (a *Agent) notify(it Item) {
	if a.opts.OnChange != nil {
		a.opts.OnChange(it)
	}
}
