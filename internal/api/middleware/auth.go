// auth.go — опциональная JWT-аутентификация медиа-API.
// Включается только при заданном MH_JWKS_URL. Токены RS256 проверяются
// по JWKS провайдера; aud и iss — если заданы MH_JWT_AUDIENCE/MH_JWT_ISSUER.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/iAdityaSharma2912/krazy-notesy/internal/api/errors"
)

// ScopeWrite — scope изменяющих операций: upload, delete, schedule.
const ScopeWrite = "media:write"

var authFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mh_auth_failures_total",
	Help: "Отказы в доступе по причинам.",
}, []string{"reason"})

type (
	subjectKey struct{}
	scopesKey  struct{}
)

// Claims — JWT claims медиа-API. Scope принимается в виде строки
// "scope" (OAuth2) и/или массива "scopes".
type Claims struct {
	jwt.RegisteredClaims
	ScopeString string   `json:"scope,omitempty"`
	ScopeArray  []string `json:"scopes,omitempty"`
}

// Scopes объединяет оба представления.
func (c *Claims) Scopes() []string {
	return append(strings.Fields(c.ScopeString), c.ScopeArray...)
}

// TokenRules — требования к токену помимо подписи и exp.
type TokenRules struct {
	// Leeway — допустимое расхождение часов
	Leeway time.Duration
	// Audience — ожидаемый aud (пусто — не проверяется)
	Audience string
	// Issuer — ожидаемый iss (пусто — не проверяется)
	Issuer string
}

func (tr TokenRules) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(tr.Leeway),
	}
	if tr.Audience != "" {
		opts = append(opts, jwt.WithAudience(tr.Audience))
	}
	if tr.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(tr.Issuer))
	}
	return opts
}

// JWTAuthConfig — параметры JWKS-клиента и проверки токенов.
type JWTAuthConfig struct {
	JWKSURL         string
	CACertPath      string
	TLSSkipVerify   bool
	ClientTimeout   time.Duration
	RefreshInterval time.Duration
	Rules           TokenRules
}

// JWTAuth проверяет Bearer-токены.
type JWTAuth struct {
	keys   keyfunc.Keyfunc
	parser *jwt.Parser
	logger *slog.Logger
}

// NewJWTAuth создаёт middleware с ключами, периодически загружаемыми из JWKSURL.
// Недоступность JWKS при старте не ошибка: запросы получают 401,
// пока ключи не загрузятся.
func NewJWTAuth(authCfg JWTAuthConfig, logger *slog.Logger) (*JWTAuth, error) {
	httpClient, err := jwksHTTPClient(authCfg)
	if err != nil {
		return nil, err
	}

	storage, err := jwkset.NewStorageFromHTTP(authCfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           authCfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("url", authCfg.JWKSURL),
				slog.String("error", err.Error()),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	return NewJWTAuthWithKeyfunc(kf, authCfg.Rules, logger), nil
}

// jwksHTTPClient — HTTP-клиент JWKS с опциональным CA и skip-verify.
func jwksHTTPClient(authCfg JWTAuthConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: authCfg.TLSSkipVerify, //nolint:gosec // MH_TLS_SKIP_VERIFY
	}

	if authCfg.CACertPath != "" {
		pem, err := os.ReadFile(authCfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", authCfg.CACertPath, err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA-сертификат %s не содержит PEM-блоков", authCfg.CACertPath)
		}
		tlsConfig.RootCAs = pool
	}

	return &http.Client{
		Timeout:   authCfg.ClientTimeout,
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}, nil
}

// NewJWTAuthWithKeyfunc создаёт middleware с готовым источником ключей.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, rules TokenRules, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		keys:   kf,
		parser: jwt.NewParser(rules.parserOptions()...),
		logger: logger.With(slog.String("component", "jwt_auth")),
	}
}

// bearerToken извлекает токен из Authorization: Bearer <token>.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("Отсутствует заголовок Authorization")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("Неверный формат Authorization: ожидается Bearer <token>")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("Пустой Bearer token")
	}
	return token, nil
}

// unauthorized отвечает 401 с вызовом по RFC 6750.
func unauthorized(w http.ResponseWriter, reason, message string, invalidToken bool) {
	authFailuresTotal.WithLabelValues(reason).Inc()
	challenge := `Bearer realm="media"`
	if invalidToken {
		challenge += `, error="invalid_token"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	apierrors.Unauthorized(w, message)
}

// Middleware проверяет подпись, exp/nbf и (если заданы) aud/iss,
// кладёт sub и scopes в контекст. Токен без sub отклоняется.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err != nil {
				unauthorized(w, "missing_token", err.Error(), false)
				return
			}

			claims := &Claims{}
			if _, err := j.parser.ParseWithClaims(raw, claims, j.keys.KeyfuncCtx(r.Context())); err != nil {
				j.logger.Debug("Токен отклонён",
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("error", err.Error()),
				)
				unauthorized(w, "invalid_token", "Невалидный или просроченный токен", true)
				return
			}
			if claims.Subject == "" {
				unauthorized(w, "no_subject", "Отсутствует sub в токене", true)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
			ctx = context.WithValue(ctx, scopesKey{}, claims.Scopes())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope отвечает 403, если у токена нет scope.
// Ставится после JWTAuth.Middleware.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(ScopesFromContext(r.Context()), scope) {
				authFailuresTotal.WithLabelValues("insufficient_scope").Inc()
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="media", error="insufficient_scope", scope=%q`, scope))
				apierrors.Forbidden(w, "Недостаточно прав: требуется scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SubjectFromContext возвращает sub токена или пустую строку.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(subjectKey{}).(string)
	return subject
}

// ScopesFromContext возвращает scopes токена.
func ScopesFromContext(ctx context.Context) []string {
	scopes, _ := ctx.Value(scopesKey{}).([]string)
	return scopes
}
