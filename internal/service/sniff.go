// sniff.go — определение MIME-типа загружаемого содержимого.
package service

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen — объём заголовка, по которому определяется тип.
// Совпадает с лимитом чтения mimetype по умолчанию.
const sniffLen = 3072

// sniffContent читает заголовок потока и определяет MIME-тип по содержимому.
// Возвращает тип и reader, который отдаёт поток целиком, включая
// уже прочитанный заголовок.
func sniffContent(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, err
	}
	head = head[:n]

	mt := mimetype.Detect(head)
	return mt.String(), io.MultiReader(bytes.NewReader(head), r), nil
}

// mimeAllowed проверяет тип по списку префиксов ("image/", "video/mp4").
// Пустой список разрешает любой тип. Параметры типа (charset) игнорируются.
func mimeAllowed(mimeType string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.TrimSpace(strings.ToLower(base))
	for _, p := range prefixes {
		if strings.HasPrefix(base, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
