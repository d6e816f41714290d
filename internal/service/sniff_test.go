package service

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

// TestSniffContent проверяет определение типа и сохранность потока.
func TestSniffContent(t *testing.T) {
	payload := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0xAB}, 10000)...)

	mimeType, r, err := sniffContent(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("sniffContent: %v", err)
	}
	if mimeType != "image/png" {
		t.Errorf("ожидалось image/png, получено %q", mimeType)
	}

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("поток изменён: %d байт вместо %d", len(got), len(payload))
	}
}

func TestSniffContent_ShortAndEmpty(t *testing.T) {
	for _, in := range []string{"", "hello"} {
		mimeType, r, err := sniffContent(strings.NewReader(in))
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if mimeType == "" {
			t.Errorf("%q: тип не определён", in)
		}
		got, _ := io.ReadAll(r)
		if string(got) != in {
			t.Errorf("ожидалось %q, получено %q", in, got)
		}
	}
}

func TestMimeAllowed(t *testing.T) {
	tests := []struct {
		mime     string
		prefixes []string
		want     bool
	}{
		{"text/plain; charset=utf-8", nil, true},
		{"image/png", []string{"image/"}, true},
		{"video/mp4", []string{"image/", "video/"}, true},
		{"video/quicktime", []string{"video/mp4"}, false},
		{"IMAGE/JPEG", []string{"image/"}, true},
		{"text/plain; charset=utf-8", []string{"image/", "video/"}, false},
		{"application/octet-stream", []string{"image/"}, false},
	}
	for _, tt := range tests {
		if got := mimeAllowed(tt.mime, tt.prefixes); got != tt.want {
			t.Errorf("mimeAllowed(%q, %v): ожидалось %v, получено %v", tt.mime, tt.prefixes, tt.want, got)
		}
	}
}
