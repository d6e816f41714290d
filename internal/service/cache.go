// Пакет service — бизнес-логика медиа-сервиса.
// cache.go — кэш листинга с коротким TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iAdityaSharma2912/krazy-notesy/internal/domain/model"
)

// Prometheus-метрики кэша листинга.
var (
	listCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mh_list_cache_hits_total",
		Help: "Общее количество попаданий в кэш листинга.",
	})
	listCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mh_list_cache_misses_total",
		Help: "Общее количество промахов кэша листинга.",
	})
	listCacheStaleTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mh_list_cache_stale_total",
		Help: "Листинги, не сохранённые в кэш из-за сброса во время чтения.",
	})
)

// ListingCache — LRU-кэш отсортированного листинга директории загрузок.
// Ключ — каноническое представление фильтра (ListFilter.cacheKey).
// Локальные upload/delete сбрасывают кэш целиком; изменения на диске
// в обход сервиса становятся видны не позже чем через TTL.
//
// Листинг, прочитанный до Purge, в кэш не попадает: читатель берёт
// Generation до чтения директории и передаёт её в Set.
//
// Нулевой указатель — рабочий «выключенный» кэш: всегда промах.
type ListingCache struct {
	cache *expirable.LRU[string, []model.MediaFile]

	mu  sync.Mutex
	gen uint64
}

// NewListingCache создаёт кэш на maxSize фильтров с временем жизни ttl.
// При ttl <= 0 возвращает nil (кэш отключён).
func NewListingCache(maxSize int, ttl time.Duration) *ListingCache {
	if ttl <= 0 {
		return nil
	}
	return &ListingCache{
		cache: expirable.NewLRU[string, []model.MediaFile](maxSize, nil, ttl),
	}
}

// Get возвращает листинг из кэша.
// Возвращаемый срез общий для всех читателей и не должен изменяться.
func (c *ListingCache) Get(key string) ([]model.MediaFile, bool) {
	if c == nil {
		return nil, false
	}
	val, ok := c.cache.Get(key)
	if ok {
		listCacheHitsTotal.Inc()
		return val, true
	}
	listCacheMissesTotal.Inc()
	return nil, false
}

// Generation возвращает номер текущего поколения. Растёт при каждом Purge.
func (c *ListingCache) Generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Set сохраняет листинг, прочитанный в поколении gen. Если с тех пор
// был Purge, листинг мог устареть и отбрасывается; возвращается false.
func (c *ListingCache) Set(key string, files []model.MediaFile, gen uint64) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		listCacheStaleTotal.Inc()
		return false
	}
	c.cache.Add(key, files)
	return true
}

// Purge сбрасывает все записи и начинает новое поколение.
func (c *ListingCache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Purge()
}

// Len возвращает количество записей в кэше.
func (c *ListingCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}
