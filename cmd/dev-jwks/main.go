// dev-jwks — локальный издатель JWT для разработки медиа-API с включённой
// аутентификацией. Генерирует RSA-ключ при старте, отдаёт JWKS
// по GET /jwks и подписывает токены по POST /token.
//
// Пример:
//
//	MH_JWKS_URL=http://localhost:8085/jwks krazy-notesy-server
//	TOKEN=$(curl -s -XPOST localhost:8085/token -d '{"sub":"dev","scope":"media:write"}' | jq -r .token)
//	mediactl -token "$TOKEN" upload photo.png
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/iAdityaSharma2912/krazy-notesy/internal/api/errors"
	"github.com/iAdityaSharma2912/krazy-notesy/internal/api/middleware"
)

// keyID — kid единственного ключа в JWKS.
const keyID = "dev-key-1"

// defaultTTL — срок жизни токена, если ttlSeconds не задан.
const defaultTTL = time.Hour

// jwksKey — ключ JWKS (RFC 7517).
type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksResponse struct {
	Keys []jwksKey `json:"keys"`
}

// tokenRequest — тело POST /token.
type tokenRequest struct {
	Sub string `json:"sub"`
	// Scope — scope через пробел, например "media:write"
	Scope      string `json:"scope"`
	TTLSeconds int    `json:"ttlSeconds"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// issuer хранит ключ и кэшированный JWKS.
type issuer struct {
	privateKey *rsa.PrivateKey
	jwks       []byte
	now        func() time.Time
	logger     *slog.Logger
}

func newIssuer(keySize int, logger *slog.Logger) (*issuer, error) {
	key, err := rsa.GenerateKey(rand.Reader, keySize)
	if err != nil {
		return nil, fmt.Errorf("генерация RSA ключа: %w", err)
	}
	jwks, err := json.Marshal(jwksResponse{Keys: []jwksKey{{
		Kty: "RSA",
		Kid: keyID,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}}})
	if err != nil {
		return nil, fmt.Errorf("сериализация JWKS: %w", err)
	}
	return &issuer{privateKey: key, jwks: jwks, now: time.Now, logger: logger}, nil
}

func (s *issuer) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/jwks", s.handleJWKS)
	r.Post("/token", s.handleToken)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}

// handleJWKS обрабатывает GET /jwks.
func (s *issuer) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(s.jwks)
}

// handleToken обрабатывает POST /token.
func (s *issuer) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.InvalidRequest(w, "Невалидный JSON: "+err.Error())
		return
	}
	if req.Sub == "" {
		apierrors.InvalidRequest(w, "Поле 'sub' обязательно")
		return
	}

	ttl := defaultTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	now := s.now()
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Sub,
			Issuer:    "dev-jwks",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		ScopeString: req.Scope,
	})
	token.Header["kid"] = keyID

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		s.logger.Error("Ошибка подписи JWT", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка генерации токена")
		return
	}

	s.logger.Info("Токен выдан",
		slog.String("sub", req.Sub),
		slog.String("scope", req.Scope),
		slog.String("ttl", ttl.String()),
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tokenResponse{Token: signed, ExpiresAt: expiresAt.UTC()})
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	port := os.Getenv("DEV_JWKS_PORT")
	if port == "" {
		port = "8085"
	}
	keySize := 2048
	if v := os.Getenv("DEV_JWKS_KEY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 2048 {
			keySize = n
		}
	}

	iss, err := newIssuer(keySize, logger)
	if err != nil {
		logger.Error("Ошибка инициализации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           iss.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("dev-jwks запущен", slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
