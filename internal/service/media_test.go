package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iAdityaSharma2912/krazy-notesy/internal/domain/model"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/storage/blobstore"
)

// pngHeader — минимальная сигнатура PNG для определения типа.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestMediaService создаёт сервис над временной директорией.
func newTestMediaService(t *testing.T, cache *ListingCache, opts MediaOptions) (*MediaService, *blobstore.Store) {
	t.Helper()
	store := blobstore.New(filepath.Join(t.TempDir(), "uploads"))
	if err := store.EnsureRoot(); err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}
	return NewMediaService(store, cache, opts, testLogger()), store
}

// setMtime выставляет mtime файла хранилища.
func setMtime(t *testing.T, store *blobstore.Store, id string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(filepath.Join(store.Root(), id), mtime, mtime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
}

func upload(t *testing.T, svc *MediaService, name string, data []byte) *model.MediaFile {
	t.Helper()
	mf, err := svc.Upload(context.Background(), UploadParams{
		Reader:           bytes.NewReader(data),
		OriginalFilename: name,
	})
	if err != nil {
		t.Fatalf("Upload(%q): %v", name, err)
	}
	return mf
}

// TestUpload_ThenList проверяет, что загруженный файл появляется в листинге.
func TestUpload_ThenList(t *testing.T) {
	svc, _ := newTestMediaService(t, nil, MediaOptions{})

	mf := upload(t, svc, "a b.png", pngHeader)

	if !strings.HasSuffix(mf.ID, "-a_b.png") {
		t.Errorf("ID должен содержать a_b.png: %q", mf.ID)
	}
	if mf.Name != "a_b.png" {
		t.Errorf("Name: ожидалось a_b.png, получено %q", mf.Name)
	}
	if mf.Type != model.CategoryPictures {
		t.Errorf("Type: ожидалось pictures, получено %q", mf.Type)
	}
	if mf.Size != int64(len(pngHeader)) {
		t.Errorf("Size: ожидалось %d, получено %d", len(pngHeader), mf.Size)
	}
	if mf.MimeType != "image/png" {
		t.Errorf("MimeType: ожидалось image/png, получено %q", mf.MimeType)
	}

	files, err := svc.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 1 || files[0].ID != mf.ID {
		t.Fatalf("ожидался один файл %q, получено %+v", mf.ID, files)
	}
}

// TestUpload_VideoCategories проверяет границу shorts/videos.
func TestUpload_VideoCategories(t *testing.T) {
	svc, _ := newTestMediaService(t, nil, MediaOptions{})

	short := upload(t, svc, "clip.mp4", make([]byte, 1024))
	if short.Type != model.CategoryShorts {
		t.Errorf("ожидалось shorts, получено %q", short.Type)
	}

	long := upload(t, svc, "movie.mov", make([]byte, model.ShortsThreshold))
	if long.Type != model.CategoryVideos {
		t.Errorf("ожидалось videos для ровно 10 MiB, получено %q", long.Type)
	}
}

// TestUpload_MaxFileSize проверяет лимит размера.
func TestUpload_MaxFileSize(t *testing.T) {
	svc, store := newTestMediaService(t, nil, MediaOptions{MaxFileSize: 5000})

	// Ровно лимит — допустимо
	upload(t, svc, "exact.bin", make([]byte, 5000))

	// Превышение после заголовка
	_, err := svc.Upload(context.Background(), UploadParams{
		Reader:           bytes.NewReader(make([]byte, 5001)),
		OriginalFilename: "big.bin",
	})
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("ожидалась ErrFileTooLarge, получено %v", err)
	}

	// Превышение внутри заголовка
	small, _ := newTestMediaService(t, nil, MediaOptions{MaxFileSize: 10})
	if _, err := small.Upload(context.Background(), UploadParams{
		Reader:           bytes.NewReader(make([]byte, 100)),
		OriginalFilename: "tiny.bin",
	}); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("ожидалась ErrFileTooLarge, получено %v", err)
	}

	// Временный файл не остаётся
	entries, err := os.ReadDir(store.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("ожидался один файл в хранилище, получено %d", len(entries))
	}
}

// TestUpload_AllowList проверяет allow-list MIME-типов.
func TestUpload_AllowList(t *testing.T) {
	svc, _ := newTestMediaService(t, nil, MediaOptions{AllowedMIMETypes: []string{"image/", "video/"}})

	upload(t, svc, "ok.png", pngHeader)

	_, err := svc.Upload(context.Background(), UploadParams{
		Reader:           strings.NewReader("just some text"),
		OriginalFilename: "notes.png",
	})
	if !errors.Is(err, ErrUnsupportedMediaType) {
		t.Fatalf("ожидалась ErrUnsupportedMediaType, получено %v", err)
	}
}

// TestUpload_MissingRoot проверяет ошибку записи при отсутствии директории.
func TestUpload_MissingRoot(t *testing.T) {
	store := blobstore.New(filepath.Join(t.TempDir(), "missing"))
	svc := NewMediaService(store, nil, MediaOptions{}, testLogger())

	_, err := svc.Upload(context.Background(), UploadParams{
		Reader:           bytes.NewReader(pngHeader),
		OriginalFilename: "a.png",
	})
	if !errors.Is(err, blobstore.ErrWriteFailed) {
		t.Fatalf("ожидалась ErrWriteFailed, получено %v", err)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestUpload_ReaderError(t *testing.T) {
	svc, _ := newTestMediaService(t, nil, MediaOptions{})

	_, err := svc.Upload(context.Background(), UploadParams{Reader: errReader{}, OriginalFilename: "a.png"})
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("ожидалась исходная ошибка чтения, получено %v", err)
	}
}

// TestList_SortedNewestFirst проверяет сортировку и фильтрацию.
func TestList_SortedNewestFirst(t *testing.T) {
	svc, store := newTestMediaService(t, nil, MediaOptions{})

	base := time.Now().Add(-time.Hour)
	older := upload(t, svc, "older.png", pngHeader)
	newer := upload(t, svc, "newer.mp4", []byte("not really a video"))
	middle := upload(t, svc, "middle.png", pngHeader)
	setMtime(t, store, older.ID, base)
	setMtime(t, store, middle.ID, base.Add(time.Minute))
	setMtime(t, store, newer.ID, base.Add(2*time.Minute))

	files, err := svc.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{newer.ID, middle.ID, older.ID}
	if len(files) != len(want) {
		t.Fatalf("ожидалось %d файлов, получено %d", len(want), len(files))
	}
	for i, id := range want {
		if files[i].ID != id {
			t.Errorf("позиция %d: ожидалось %q, получено %q", i, id, files[i].ID)
		}
	}

	pictures, _ := svc.List(context.Background(), ListFilter{Type: model.CategoryPictures})
	if len(pictures) != 2 {
		t.Errorf("фильтр pictures: ожидалось 2, получено %d", len(pictures))
	}

	page, _ := svc.List(context.Background(), ListFilter{Offset: 1, Limit: 1})
	if len(page) != 1 || page[0].ID != middle.ID {
		t.Errorf("окно offset=1 limit=1: получено %+v", page)
	}

	past, _ := svc.List(context.Background(), ListFilter{Offset: 10})
	if past == nil || len(past) != 0 {
		t.Errorf("offset за концом: ожидался пустой срез (не nil), получено %#v", past)
	}
}

// TestList_MissingRoot проверяет пустой результат без ошибки.
func TestList_MissingRoot(t *testing.T) {
	store := blobstore.New(filepath.Join(t.TempDir(), "never-created"))
	svc := NewMediaService(store, nil, MediaOptions{}, testLogger())

	files, err := svc.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("List: неожиданная ошибка: %v", err)
	}
	if files == nil || len(files) != 0 {
		t.Errorf("ожидался пустой срез, получено %#v", files)
	}
}

// TestList_CacheInvalidation проверяет сброс кэша при загрузке и удалении.
func TestList_CacheInvalidation(t *testing.T) {
	cache := NewListingCache(16, time.Minute)
	svc, store := newTestMediaService(t, cache, MediaOptions{})

	first := upload(t, svc, "a.png", pngHeader)
	if files, _ := svc.List(context.Background(), ListFilter{}); len(files) != 1 {
		t.Fatalf("ожидался 1 файл, получено %d", len(files))
	}

	// Изменение в обход сервиса не видно до истечения TTL
	if err := os.WriteFile(filepath.Join(store.Root(), "external.png"), pngHeader, 0o600); err != nil {
		t.Fatal(err)
	}
	if files, _ := svc.List(context.Background(), ListFilter{}); len(files) != 1 {
		t.Errorf("ожидался закэшированный листинг из 1 файла, получено %d", len(files))
	}

	// Локальная загрузка сбрасывает кэш
	upload(t, svc, "b.png", pngHeader)
	if files, _ := svc.List(context.Background(), ListFilter{}); len(files) != 3 {
		t.Errorf("после загрузки ожидалось 3 файла, получено %d", len(files))
	}

	// Локальное удаление сбрасывает кэш
	if _, err := svc.Delete(context.Background(), []string{first.ID}); err != nil {
		t.Fatal(err)
	}
	if files, _ := svc.List(context.Background(), ListFilter{}); len(files) != 2 {
		t.Errorf("после удаления ожидалось 2 файла, получено %d", len(files))
	}
}

// TestList_ConcurrentWritesNeverCacheStale проверяет, что листинг после
// успешной загрузки содержит файл, даже если параллельные листинги
// читали директорию до неё и пытаются сохранить результат в кэш.
func TestList_ConcurrentWritesNeverCacheStale(t *testing.T) {
	cache := NewListingCache(16, time.Minute)
	svc, _ := newTestMediaService(t, cache, MediaOptions{})
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				// Сброс от записей других клиентов
				cache.Purge()
				_, _ = svc.List(context.Background(), ListFilter{})
			}
		}()
	}

	misses := 0
	const rounds = 200
	for i := range rounds {
		mf := upload(t, svc, fmt.Sprintf("f%d.png", i), pngHeader)
		files, err := svc.List(context.Background(), ListFilter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if !slices.ContainsFunc(files, func(f model.MediaFile) bool { return f.ID == mf.ID }) {
			misses++
		}
	}
	cancel()
	wg.Wait()

	if misses > 0 {
		t.Errorf("листинг после загрузки не содержал файл в %d из %d раундов", misses, rounds)
	}
}

// TestDelete_Idempotent проверяет повторное удаление тех же id.
func TestDelete_Idempotent(t *testing.T) {
	svc, _ := newTestMediaService(t, nil, MediaOptions{})

	a := upload(t, svc, "a.png", pngHeader)
	b := upload(t, svc, "b.png", pngHeader)
	ids := []string{a.ID, b.ID, "missing.png"}

	n, err := svc.Delete(context.Background(), ids)
	if err != nil || n != 2 {
		t.Fatalf("первое удаление: ожидалось 2, получено %d (%v)", n, err)
	}
	n, err = svc.Delete(context.Background(), ids)
	if err != nil || n != 0 {
		t.Fatalf("повторное удаление: ожидалось 0, получено %d (%v)", n, err)
	}
}

// TestDelete_PathTraversal проверяет, что файлы вне хранилища не затрагиваются.
func TestDelete_PathTraversal(t *testing.T) {
	dir := t.TempDir()
	store := blobstore.New(filepath.Join(dir, "uploads"))
	if err := store.EnsureRoot(); err != nil {
		t.Fatal(err)
	}
	svc := NewMediaService(store, nil, MediaOptions{}, testLogger())

	outside := filepath.Join(dir, "passwd")
	if err := os.WriteFile(outside, []byte("root:x:0:0"), 0o600); err != nil {
		t.Fatal(err)
	}

	n, err := svc.Delete(context.Background(), []string{"x", "../passwd", "../../etc/passwd"})
	if err != nil || n != 0 {
		t.Fatalf("ожидалось 0 удалений без ошибки, получено %d (%v)", n, err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("файл вне хранилища затронут: %v", err)
	}
}

// TestStats проверяет агрегаты и фиксированные поля.
func TestStats(t *testing.T) {
	svc, _ := newTestMediaService(t, nil, MediaOptions{})

	upload(t, svc, "a.bin", make([]byte, 1024*1024))
	upload(t, svc, "b.bin", make([]byte, 512*1024))

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalMedia != 2 {
		t.Errorf("TotalMedia: ожидалось 2, получено %d", stats.TotalMedia)
	}
	if stats.TotalSizeBytes != 1536*1024 {
		t.Errorf("TotalSizeBytes: получено %d", stats.TotalSizeBytes)
	}
	if stats.TotalSize != "1.50 MB" {
		t.Errorf("TotalSize: ожидалось 1.50 MB, получено %q", stats.TotalSize)
	}
	if stats.ActivePosts != 0 || stats.Engagement != "0" {
		t.Errorf("placeholder-поля: получено %d / %q", stats.ActivePosts, stats.Engagement)
	}
}

func TestStats_MissingRoot(t *testing.T) {
	store := blobstore.New(filepath.Join(t.TempDir(), "never-created"))
	svc := NewMediaService(store, nil, MediaOptions{}, testLogger())

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: неожиданная ошибка: %v", err)
	}
	if stats.TotalMedia != 0 || stats.TotalSizeBytes != 0 || stats.TotalSize != "0.00 MB" {
		t.Errorf("ожидались нули, получено %+v", stats)
	}
}

// TestEndToEnd — две загрузки, листинг, удаление одной, листинг.
func TestEndToEnd(t *testing.T) {
	svc, store := newTestMediaService(t, NewListingCache(8, time.Minute), MediaOptions{})

	first := upload(t, svc, "first.png", pngHeader)
	second := upload(t, svc, "second.png", pngHeader)
	setMtime(t, store, first.ID, time.Now().Add(-time.Minute))

	files, _ := svc.List(context.Background(), ListFilter{})
	if len(files) != 2 || files[0].ID != second.ID || files[1].ID != first.ID {
		t.Fatalf("неожиданный листинг: %+v", files)
	}

	if n, _ := svc.Delete(context.Background(), []string{second.ID}); n != 1 {
		t.Fatalf("ожидалось 1 удаление, получено %d", n)
	}

	files, _ = svc.List(context.Background(), ListFilter{})
	if len(files) != 1 || files[0].ID != first.ID {
		t.Fatalf("ожидался только %q, получено %+v", first.ID, files)
	}
}

func TestContextCanceled(t *testing.T) {
	svc, _ := newTestMediaService(t, nil, MediaOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.List(ctx, ListFilter{}); !errors.Is(err, context.Canceled) {
		t.Errorf("List: ожидалась context.Canceled, получено %v", err)
	}
	if _, err := svc.Delete(ctx, []string{"a"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Delete: ожидалась context.Canceled, получено %v", err)
	}
}
