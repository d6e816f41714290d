// Пакет mediaclient — HTTP-клиент медиа-API.
// Операции: Upload (POST /api/upload, потоковый multipart), List, Delete,
// Stats, CreateSchedule. Ошибки сервера разбираются из стандартного
// формата {"error": {"code", "message"}} в *APIError.
package mediaclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	apierrors "github.com/iAdityaSharma2912/krazy-notesy/internal/api/errors"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/domain/model"
)

// DefaultTimeout — таймаут запроса по умолчанию.
const DefaultTimeout = 30 * time.Second

// TokenProvider — функция, возвращающая Bearer-токен для запроса.
type TokenProvider func(ctx context.Context) (string, error)

// APIError — ответ сервера со статусом вне 2xx.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("сервер вернул статус %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("сервер вернул статус %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Stats — ответ GET /api/stats.
type Stats struct {
	TotalMedia     int    `json:"totalMedia"`
	TotalSizeBytes int64  `json:"totalSizeBytes"`
	TotalSize      string `json:"totalSize"`
	ActivePosts    int    `json:"activePosts"`
	Engagement     string `json:"engagement"`
}

// ListOptions — параметры GET /api/files. Нулевое значение — все файлы.
type ListOptions struct {
	Type   model.Category
	Limit  int
	Offset int
}

// ScheduleJob — тело POST /api/schedule/create.
type ScheduleJob struct {
	ScheduleType      string   `json:"scheduleType,omitempty"`
	DateTime          string   `json:"dateTime,omitempty"`
	Time              string   `json:"time,omitempty"`
	SelectedPlatforms []string `json:"selectedPlatforms,omitempty"`
	SelectedFileIDs   []string `json:"selectedFileIds,omitempty"`
	Caption           string   `json:"caption,omitempty"`
	MinDelayHours     *float64 `json:"minDelayHours,omitempty"`
}

// ScheduleResult — ответ POST /api/schedule/create.
type ScheduleResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	JobID   string `json:"jobId"`
}

// Option настраивает Client.
type Option func(*Client)

// WithTimeout задаёт таймаут одного запроса (0 — без таймаута).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient подменяет HTTP-клиент целиком.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken добавляет статический Bearer-токен ко всем запросам.
func WithToken(token string) Option {
	return WithTokenProvider(func(context.Context) (string, error) { return token, nil })
}

// WithTokenProvider добавляет Bearer-токен, получаемый перед каждым запросом.
func WithTokenProvider(p TokenProvider) Option {
	return func(c *Client) { c.tokenProvider = p }
}

// WithLogger задаёт логгер клиента.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client — HTTP-клиент медиа-API.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	tokenProvider TokenProvider
	logger        *slog.Logger
}

// New создаёт клиент для сервера baseURL (например, http://localhost:5000).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("некорректный адрес сервера %q", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "media_client"))
	return c, nil
}

// NewTLSClient возвращает HTTP-клиент, доверяющий CA из caCertPath
// в дополнение к системному пулу. Используется с WithHTTPClient.
func NewTLSClient(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("CA-сертификат %s не содержит PEM-блоков", caCertPath)
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
		},
	}, nil
}

// BaseURL возвращает адрес сервера без завершающего "/".
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Upload загружает содержимое r под именем filename.
// Тело multipart формируется потоково через io.Pipe.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*model.MediaFile, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/upload", pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		Message string          `json:"message"`
		Data    model.MediaFile `json:"data"`
	}
	if err := c.do(req, http.StatusCreated, &out); err != nil {
		return nil, fmt.Errorf("загрузка %s: %w", filename, err)
	}

	c.logger.Debug("Файл загружен",
		slog.String("filename", filename),
		slog.String("id", out.Data.ID),
	)
	return &out.Data, nil
}

// List возвращает файлы, новые первыми.
func (c *Client) List(ctx context.Context, opts ListOptions) ([]model.MediaFile, error) {
	query := url.Values{}
	if opts.Type != "" {
		query.Set("type", string(opts.Type))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/api/files"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var files []model.MediaFile
	if err := c.do(req, http.StatusOK, &files); err != nil {
		return nil, fmt.Errorf("листинг файлов: %w", err)
	}
	if files == nil {
		files = []model.MediaFile{}
	}
	return files, nil
}

// Delete удаляет файлы по id и возвращает количество удалённых.
// Пустой список допустим: сервер вернёт 0.
func (c *Client) Delete(ctx context.Context, ids []string) (int, error) {
	if ids == nil {
		ids = []string{}
	}

	var out struct {
		Message      string `json:"message"`
		DeletedCount int    `json:"deletedCount"`
	}
	if err := c.postJSON(ctx, "/api/files/delete", map[string][]string{"ids": ids}, &out); err != nil {
		return 0, fmt.Errorf("удаление файлов: %w", err)
	}
	return out.DeletedCount, nil
}

// Stats возвращает агрегированную статистику.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/stats", nil)
	if err != nil {
		return nil, err
	}
	var stats Stats
	if err := c.do(req, http.StatusOK, &stats); err != nil {
		return nil, fmt.Errorf("статистика: %w", err)
	}
	return &stats, nil
}

// CreateSchedule отправляет задание публикации. Сервер только
// принимает и логирует его.
func (c *Client) CreateSchedule(ctx context.Context, job ScheduleJob) (*ScheduleResult, error) {
	var out ScheduleResult
	if err := c.postJSON(ctx, "/api/schedule/create", job, &out); err != nil {
		return nil, fmt.Errorf("создание задания: %w", err)
	}
	return &out, nil
}

// postJSON отправляет JSON-тело и декодирует ответ 200.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("кодирование тела запроса: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, http.StatusOK, out)
}

// newRequest создаёт запрос к серверу с Bearer-токеном, если он задан.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("создание запроса %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")

	if c.tokenProvider != nil {
		token, err := c.tokenProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("получение токена: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do выполняет запрос. Статус, отличный от want, превращается в *APIError.
func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.httpClient.Do(req) //nolint:gosec // адрес сервера задан пользователем
	if err != nil {
		return fmt.Errorf("запрос %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("декодирование ответа %s: %w", req.URL.Path, err)
	}
	return nil
}

// decodeAPIError разбирает тело ошибки. Если оно не в стандартном
// формате, сообщением становится текст тела.
func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if detail, ok := apierrors.Decode(bytes.NewReader(body)); ok {
		apiErr.Code = detail.Code
		apiErr.Message = detail.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// IsCode сообщает, является ли err ошибкой сервера с кодом code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
