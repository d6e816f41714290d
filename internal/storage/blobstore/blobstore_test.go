package blobstore

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// newTestStore создаёт Store во временной директории с созданным root.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "uploads"))
	if err := s.EnsureRoot(); err != nil {
		t.Fatalf("ошибка создания root: %v", err)
	}
	return s
}

// TestEnsureRoot_Idempotent проверяет повторное создание директории.
func TestEnsureRoot_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	s := New(dir)

	for i := 0; i < 2; i++ {
		if err := s.EnsureRoot(); err != nil {
			t.Fatalf("вызов %d: неожиданная ошибка: %v", i+1, err)
		}
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("директория не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь не является директорией")
	}
}

// TestEnsureRoot_Unavailable проверяет ошибку, если root занят файлом.
func TestEnsureRoot_Unavailable(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := New(filepath.Join(blocker, "uploads"))
	err := s.EnsureRoot()
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("ожидалась ErrStorageUnavailable, получено %v", err)
	}
}

// TestGenerateName проверяет формат имени.
func TestGenerateName(t *testing.T) {
	s := New(t.TempDir())
	s.now = func() time.Time { return time.UnixMilli(1700000000123) }
	s.randInt = func() int64 { return 42 }

	got := s.GenerateName("a b.png")
	if got != "1700000000123-42-a_b.png" {
		t.Errorf("ожидалось 1700000000123-42-a_b.png, получено %s", got)
	}
}

// TestGenerateName_Distinct проверяет, что разные случайные значения дают разные имена.
func TestGenerateName_Distinct(t *testing.T) {
	s := New(t.TempDir())
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		name := s.GenerateName("photo.jpg")
		if seen[name] {
			t.Fatalf("повтор имени: %s", name)
		}
		seen[name] = true
	}
}

// TestSanitize проверяет очистку клиентского имени.
func TestSanitize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a b.png", "a_b.png"},
		{"a   b\t c.mp4", "a_b_c.mp4"},
		{"  lead.png", "_lead.png"},
		{"no-spaces.jpg", "no-spaces.jpg"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\My Clip.mov`, "My_Clip.mov"},
		{"", "file"},
		{"..", "file"},
		{"notes.tmp", "notes.tmp_"},
		{"тест файл.png", "тест_файл.png"},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.input); got != tt.expected {
			t.Errorf("Sanitize(%q): ожидалось %q, получено %q", tt.input, tt.expected, got)
		}
	}
}

// TestWriteAndList проверяет запись и листинг.
func TestWriteAndList(t *testing.T) {
	s := newTestStore(t)

	content := []byte("Hello, World! Тестовые данные.")
	size, err := s.Write("1-1-hello.txt", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), size)
	}

	// Временный файл не должен остаться
	if _, err := os.Stat(filepath.Join(s.Root(), "1-1-hello.txt.tmp")); !os.IsNotExist(err) {
		t.Error("временный файл не должен существовать")
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("ошибка листинга: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ожидался 1 файл, получено %d", len(entries))
	}
	if entries[0].Name != "1-1-hello.txt" || entries[0].Size != int64(len(content)) {
		t.Errorf("неожиданная запись: %+v", entries[0])
	}
}

// failingReader возвращает ошибку после части данных.
type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "partial"), nil
	}
	return 0, io.ErrUnexpectedEOF
}

// TestWrite_ReaderError проверяет откат при ошибке потока.
func TestWrite_ReaderError(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Write("1-1-broken.bin", &failingReader{})
	if !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("ожидалась ErrWriteFailed, получено %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("исходная ошибка должна сохраняться в цепочке: %v", err)
	}

	entries, err := os.ReadDir(s.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("после ошибки в директории не должно остаться файлов, найдено %d", len(entries))
	}
}

// TestWrite_MissingRoot проверяет ошибку записи без директории.
func TestWrite_MissingRoot(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing"))

	_, err := s.Write("1-1-a.png", strings.NewReader("data"))
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("ожидалась ErrWriteFailed, получено %v", err)
	}
}

// TestList_MissingRoot проверяет ErrStorageUnavailable для отсутствующего root.
func TestList_MissingRoot(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing"))

	_, err := s.List()
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("ожидалась ErrStorageUnavailable, получено %v", err)
	}
}

// TestList_SkipsHiddenTmpAndDirs проверяет фильтрацию служебных записей.
func TestList_SkipsHiddenTmpAndDirs(t *testing.T) {
	s := newTestStore(t)
	root := s.Root()

	mustWrite(t, filepath.Join(root, "visible.png"), "x")
	mustWrite(t, filepath.Join(root, ".health_check"), "ok")
	mustWrite(t, filepath.Join(root, "1-1-upload.mp4.tmp"), "partial")
	if err := os.Mkdir(filepath.Join(root, "subdir"), 0o750); err != nil {
		t.Fatal(err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("ошибка листинга: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "visible.png" {
		t.Errorf("ожидался только visible.png, получено %+v", entries)
	}
}

// TestRemove проверяет удаление и идемпотентность.
func TestRemove(t *testing.T) {
	s := newTestStore(t)
	mustWrite(t, filepath.Join(s.Root(), "x.png"), "data")

	removed, err := s.Remove("x.png")
	if err != nil || !removed {
		t.Fatalf("первое удаление: removed=%v, err=%v", removed, err)
	}

	removed, err = s.Remove("x.png")
	if err != nil {
		t.Fatalf("повторное удаление не должно быть ошибкой: %v", err)
	}
	if removed {
		t.Error("повторное удаление не должно сообщать об удалении")
	}
}

// TestRemove_PathTraversal проверяет, что удаление не выходит за пределы root.
func TestRemove_PathTraversal(t *testing.T) {
	base := t.TempDir()
	s := New(filepath.Join(base, "uploads"))
	if err := s.EnsureRoot(); err != nil {
		t.Fatal(err)
	}

	// Файл вне root, на который нацелен traversal
	outside := filepath.Join(base, "passwd")
	mustWrite(t, outside, "root:x:0:0")

	removed, err := s.Remove("../passwd")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if removed {
		t.Error("внутри root нет passwd, удаление не должно произойти")
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("файл вне root не должен быть затронут: %v", err)
	}

	// Одноимённый файл внутри root удаляется
	mustWrite(t, filepath.Join(s.Root(), "passwd"), "inside")
	removed, err = s.Remove("../../etc/passwd")
	if err != nil || !removed {
		t.Errorf("ожидалось удаление passwd внутри root: removed=%v, err=%v", removed, err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("файл вне root не должен быть затронут: %v", err)
	}
}

// TestRemove_InvalidNames проверяет, что служебные имена пропускаются без ошибки.
func TestRemove_InvalidNames(t *testing.T) {
	s := newTestStore(t)
	mustWrite(t, filepath.Join(s.Root(), ".health_check"), "ok")

	for _, name := range []string{"", ".", "..", "/", ".health_check"} {
		removed, err := s.Remove(name)
		if err != nil || removed {
			t.Errorf("Remove(%q): removed=%v, err=%v", name, removed, err)
		}
	}
	if _, err := os.Stat(filepath.Join(s.Root(), ".health_check")); err != nil {
		t.Error("скрытый файл не должен удаляться")
	}
}

// TestOpen проверяет чтение файла и отказ для служебных имён.
func TestOpen(t *testing.T) {
	s := newTestStore(t)
	mustWrite(t, filepath.Join(s.Root(), "a.png"), "png-bytes")

	f, info, err := s.Open("a.png")
	if err != nil {
		t.Fatalf("ошибка открытия: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "png-bytes" || info.Size() != 9 {
		t.Errorf("неожиданное содержимое: %q, размер %d", data, info.Size())
	}

	if _, _, err := s.Open("missing.png"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ожидалась os.ErrNotExist, получено %v", err)
	}
	if _, _, err := s.Open(".health_check"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("скрытые файлы не должны открываться: %v", err)
	}
}

func TestStat(t *testing.T) {
	s := newTestStore(t)
	mustWrite(t, filepath.Join(s.Root(), "clip.mp4"), "0123456789")
	if err := os.Mkdir(filepath.Join(s.Root(), "dir"), 0o750); err != nil {
		t.Fatal(err)
	}

	e, err := s.Stat("../elsewhere/clip.mp4")
	if err != nil {
		t.Fatalf("ошибка stat: %v", err)
	}
	if e.Name != "clip.mp4" || e.Size != 10 {
		t.Errorf("неожиданная запись: %+v", e)
	}

	for _, name := range []string{"missing.mp4", "dir", "x.tmp", ""} {
		if _, err := s.Stat(name); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Stat(%q): ожидалась os.ErrNotExist, получено %v", name, err)
		}
	}
}

// TestSweepTemp проверяет удаление только старых временных файлов.
func TestSweepTemp(t *testing.T) {
	s := newTestStore(t)
	root := s.Root()

	oldTmp := filepath.Join(root, "1-1-old.mp4.tmp")
	newTmp := filepath.Join(root, "1-2-new.mp4.tmp")
	regular := filepath.Join(root, "1-3-keep.mp4")
	mustWrite(t, oldTmp, "old")
	mustWrite(t, newTmp, "new")
	mustWrite(t, regular, "keep")

	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldTmp, past, past); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(regular, past, past); err != nil {
		t.Fatal(err)
	}

	removed, err := s.SweepTemp(time.Hour)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if removed != 1 {
		t.Errorf("ожидалось удаление 1 файла, удалено %d", removed)
	}
	if _, err := os.Stat(oldTmp); !os.IsNotExist(err) {
		t.Error("старый временный файл должен быть удалён")
	}
	if _, err := os.Stat(newTmp); err != nil {
		t.Error("свежий временный файл должен остаться")
	}
	if _, err := os.Stat(regular); err != nil {
		t.Error("обычный файл должен остаться")
	}
}

// TestSweepTemp_SkipsActiveWrite проверяет, что загрузка дольше maxAge
// не теряет свой временный файл.
func TestSweepTemp_SkipsActiveWrite(t *testing.T) {
	s := newTestStore(t)
	pr, pw := io.Pipe()

	type result struct {
		size int64
		err  error
	}
	done := make(chan result, 1)
	go func() {
		size, err := s.Write("1-1-long.mp4", pr)
		done <- result{size, err}
	}()

	if _, err := pw.Write([]byte("part1")); err != nil {
		t.Fatal(err)
	}
	tmpPath := filepath.Join(s.Root(), "1-1-long.mp4"+tmpSuffix)
	if _, err := os.Stat(tmpPath); err != nil {
		t.Fatalf("временный файл должен существовать во время записи: %v", err)
	}

	// Загрузка идёт дольше maxAge
	s.now = func() time.Time { return time.Now().Add(3 * time.Hour) }
	removed, err := s.SweepTemp(time.Hour)
	if err != nil || removed != 0 {
		t.Fatalf("активная загрузка не должна удаляться: (%d, %v)", removed, err)
	}

	if _, err := pw.Write([]byte("part2")); err != nil {
		t.Fatal(err)
	}
	pw.Close()

	res := <-done
	if res.err != nil || res.size != 10 {
		t.Fatalf("Write: (%d, %v)", res.size, res.err)
	}
	data, err := os.ReadFile(filepath.Join(s.Root(), "1-1-long.mp4"))
	if err != nil || string(data) != "part1part2" {
		t.Errorf("содержимое файла: %q, %v", data, err)
	}

	// После завершения записи старые temp файлы снова подлежат очистке
	stale := filepath.Join(s.Root(), "1-2-stale.mp4"+tmpSuffix)
	mustWrite(t, stale, "x")
	if removed, _ := s.SweepTemp(time.Hour); removed != 1 {
		t.Errorf("ожидалось удаление 1 брошенного файла, удалено %d", removed)
	}
}

// TestSweepTemp_MissingRoot проверяет, что отсутствие root не ошибка.
func TestSweepTemp_MissingRoot(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing"))
	removed, err := s.SweepTemp(time.Hour)
	if err != nil || removed != 0 {
		t.Errorf("ожидалось (0, nil), получено (%d, %v)", removed, err)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("запись %s: %v", path, err)
	}
}
