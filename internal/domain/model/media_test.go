package model

import (
	"testing"
	"time"
)

// TestClassify проверяет категорию по расширению и размеру.
func TestClassify(t *testing.T) {
	const mib = 1024 * 1024

	tests := []struct {
		name string
		size int64
		want Category
	}{
		{"photo.png", 5 * mib, CategoryPictures},
		{"photo.JPG", 50 * mib, CategoryPictures},
		{"clip.mp4", 9 * mib, CategoryShorts},
		{"clip.mp4", 10*mib - 1, CategoryShorts},
		{"clip.mp4", 10 * mib, CategoryVideos},
		{"movie.MKV", 700 * mib, CategoryVideos},
		{"a.mov", 0, CategoryShorts},
		{"a.avi", 11 * mib, CategoryVideos},
		{"a.webm", 50 * mib, CategoryPictures},
		{"README", 10, CategoryPictures},
	}

	for _, tt := range tests {
		if got := Classify(tt.name, tt.size); got != tt.want {
			t.Errorf("Classify(%q, %d): ожидалось %q, получено %q", tt.name, tt.size, tt.want, got)
		}
	}
}

// TestOriginalName проверяет восстановление оригинального имени.
func TestOriginalName(t *testing.T) {
	tests := []struct {
		stored string
		want   string
	}{
		{"1700000000000-123456789-a_b.png", "a_b.png"},
		{"1700000000000-5-my-clip-final.mp4", "my-clip-final.mp4"},
		{"manual-upload.png", "manual-upload.png"},
		{"photo.png", "photo.png"},
	}

	for _, tt := range tests {
		if got := OriginalName(tt.stored); got != tt.want {
			t.Errorf("OriginalName(%q): ожидалось %q, получено %q", tt.stored, tt.want, got)
		}
	}
}

// TestNewMediaFile проверяет сборку MediaFile из stat-информации.
func TestNewMediaFile(t *testing.T) {
	mtime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mf := NewMediaFile("1700000000000-42-clip.mp4", 1024, mtime)

	if mf.ID != "1700000000000-42-clip.mp4" {
		t.Errorf("ID: получено %q", mf.ID)
	}
	if mf.Name != "clip.mp4" {
		t.Errorf("Name: ожидалось clip.mp4, получено %q", mf.Name)
	}
	if mf.Type != CategoryShorts {
		t.Errorf("Type: ожидалось shorts, получено %q", mf.Type)
	}
	if !mf.Date.Equal(mtime) {
		t.Errorf("Date: ожидалось %v, получено %v", mtime, mf.Date)
	}
	if mf.URL != "" {
		t.Errorf("URL не должен вычисляться в модели: %q", mf.URL)
	}
}

func TestValidCategory(t *testing.T) {
	for _, c := range []Category{CategoryPictures, CategoryShorts, CategoryVideos} {
		if !ValidCategory(c) {
			t.Errorf("%q должна быть допустимой категорией", c)
		}
	}
	if ValidCategory("music") {
		t.Error("music не должна быть допустимой категорией")
	}
}

func TestFormatMegabytes(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0.00 MB"},
		{1024 * 1024, "1.00 MB"},
		{10 * 1024 * 1024, "10.00 MB"},
		{123456789, "117.74 MB"},
	}
	for _, tt := range tests {
		if got := FormatMegabytes(tt.size); got != tt.want {
			t.Errorf("FormatMegabytes(%d): ожидалось %q, получено %q", tt.size, tt.want, got)
		}
	}
}
