// Пакет errors — формат ошибок медиа-API: {"error": {"code": "...", "message": "..."}}.
// Сервер пишет ошибки через Write/WriteError, клиент разбирает их через Decode.
package errors //nolint:revive // совпадает с именем stdlib, импортируется как apierrors

import (
	"encoding/json"
	"io"
	"net/http"
)

// Коды ошибок, описанные в openapi.yaml.
const (
	CodeNoFileProvided       = "NO_FILE_PROVIDED"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeNotFound             = "NOT_FOUND"
	CodeMethodNotAllowed     = "METHOD_NOT_ALLOWED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeFileTooLarge         = "FILE_TOO_LARGE"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeStorageUnavailable   = "STORAGE_UNAVAILABLE"
	CodeWriteFailed          = "WRITE_FAILED"
	CodeInternalError        = "INTERNAL_ERROR"
)

// statusByCode — HTTP-статус для каждого кода.
var statusByCode = map[string]int{
	CodeNoFileProvided:       http.StatusBadRequest,
	CodeInvalidRequest:       http.StatusBadRequest,
	CodeNotFound:             http.StatusNotFound,
	CodeMethodNotAllowed:     http.StatusMethodNotAllowed,
	CodeUnauthorized:         http.StatusUnauthorized,
	CodeForbidden:            http.StatusForbidden,
	CodeFileTooLarge:         http.StatusRequestEntityTooLarge,
	CodeUnsupportedMediaType: http.StatusUnsupportedMediaType,
	CodeStorageUnavailable:   http.StatusServiceUnavailable,
	CodeWriteFailed:          http.StatusInternalServerError,
	CodeInternalError:        http.StatusInternalServerError,
}

// Detail — содержимое поля "error".
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope — тело ответа с ошибкой.
type Envelope struct {
	Error Detail `json:"error"`
}

// StatusFor возвращает HTTP-статус кода; неизвестный код — 500.
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteError пишет ошибку с явным статусом.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(Envelope{Error: Detail{Code: code, Message: message}})
}

// Write пишет ошибку со статусом, соответствующим коду.
func Write(w http.ResponseWriter, code, message string) {
	WriteError(w, StatusFor(code), code, message)
}

// Decode читает Envelope из тела ответа. ok=false, если тело
// не в этом формате или код пуст.
func Decode(r io.Reader) (d Detail, ok bool) {
	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil || env.Error.Code == "" {
		return Detail{}, false
	}
	return env.Error, true
}

func NoFileProvided(w http.ResponseWriter, message string) { Write(w, CodeNoFileProvided, message) }

func InvalidRequest(w http.ResponseWriter, message string) { Write(w, CodeInvalidRequest, message) }

func NotFound(w http.ResponseWriter, message string) { Write(w, CodeNotFound, message) }

func MethodNotAllowed(w http.ResponseWriter, message string) {
	Write(w, CodeMethodNotAllowed, message)
}

func Unauthorized(w http.ResponseWriter, message string) { Write(w, CodeUnauthorized, message) }

func Forbidden(w http.ResponseWriter, message string) { Write(w, CodeForbidden, message) }

func FileTooLarge(w http.ResponseWriter, message string) { Write(w, CodeFileTooLarge, message) }

func UnsupportedMediaType(w http.ResponseWriter, message string) {
	Write(w, CodeUnsupportedMediaType, message)
}

// StorageUnavailable — директория загрузок отсутствует или недоступна.
func StorageUnavailable(w http.ResponseWriter, message string) {
	Write(w, CodeStorageUnavailable, message)
}

func WriteFailed(w http.ResponseWriter, message string) { Write(w, CodeWriteFailed, message) }

func InternalError(w http.ResponseWriter, message string) { Write(w, CodeInternalError, message) }
