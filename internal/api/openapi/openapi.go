// Пакет openapi — встроенная OpenAPI-спецификация медиа-API
// и проверка JSON-тел запросов по ней.
package openapi

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"

	apierrors "github.com/iAdityaSharma2912/krazy-notesy/internal/api/errors"
)

//go:embed openapi.yaml
var spec []byte

// maxJSONBody — предел размера JSON-тела, читаемого в память для проверки.
const maxJSONBody = 1 << 20

// Spec возвращает исходный YAML спецификации.
func Spec() []byte {
	return spec
}

// Validator проверяет JSON-тела запросов по встроенной спецификации.
type Validator struct {
	doc *openapi3.T
}

// NewValidator загружает и валидирует встроенную спецификацию.
func NewValidator(ctx context.Context) (*Validator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("загрузка openapi.yaml: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("валидация openapi.yaml: %w", err)
	}
	return &Validator{doc: doc}, nil
}

// jsonRequestBody возвращает описание JSON-тела операции или nil,
// если у операции нет тела application/json.
func (v *Validator) jsonRequestBody(method, path string) *openapi3.RequestBody {
	item := v.doc.Paths.Find(path)
	if item == nil {
		return nil
	}
	op := item.GetOperation(method)
	if op == nil || op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	body := op.RequestBody.Value
	if body.Content.Get("application/json") == nil {
		return nil
	}
	return body
}

// ValidateBody проверяет тело запроса. После проверки r.Body снова
// доступен для чтения с начала.
func (v *Validator) ValidateBody(r *http.Request) error {
	body := v.jsonRequestBody(r.Method, r.URL.Path)
	if body == nil {
		return nil
	}

	var data []byte
	if r.Body != nil {
		var err error
		data, err = io.ReadAll(io.LimitReader(r.Body, maxJSONBody+1))
		if err != nil {
			return fmt.Errorf("чтение тела запроса: %w", err)
		}
		if len(data) > maxJSONBody {
			return fmt.Errorf("тело запроса больше %d байт", maxJSONBody)
		}
	}
	r.Body = io.NopCloser(bytes.NewReader(data))

	input := &openapi3filter.RequestValidationInput{
		Request: r,
		Options: &openapi3filter.Options{MultiError: false},
	}
	err := openapi3filter.ValidateRequestBody(r.Context(), input, body)

	r.Body = io.NopCloser(bytes.NewReader(data))
	return err
}

// Middleware возвращает HTTP middleware, отвечающий 400 INVALID_REQUEST
// на JSON-тела, не соответствующие спецификации.
func (v *Validator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := v.ValidateBody(r); err != nil {
				apierrors.InvalidRequest(w, describe(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// describe сокращает сообщение kin-openapi до первой строки.
func describe(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return "Некорректное тело запроса: " + msg
}
