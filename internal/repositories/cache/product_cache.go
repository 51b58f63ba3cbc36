package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/config"
	"github.com/crackersbazaar/api/internal/repositories"
)

const (
	productKeyPrefix = "product:"
	notFoundMarker   = "notfound"

	defaultTTL         = 5 * time.Minute
	defaultNotFoundTTL = time.Minute
)

// Connect opens a Redis client for cfg and pings it.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// ProductCache is a read-through cache for single-product lookups. Redis failures never fail a read; the
// underlying repository answers instead. Misses are remembered for a shorter TTL.
type ProductCache struct {
	products    repositories.ProductRepository
	client      redis.UniversalClient
	ttl         time.Duration
	notFoundTTL time.Duration
	logger      *zap.Logger
}

// NewProductCache wraps products with a Redis cache. TTLs fall back to five minutes and one minute.
func NewProductCache(products repositories.ProductRepository, client redis.UniversalClient, cfg config.RedisConfig, logger *zap.Logger) *ProductCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	notFoundTTL := cfg.NotFoundTTL
	if notFoundTTL <= 0 {
		notFoundTTL = defaultNotFoundTTL
	}
	return &ProductCache{
		products:    products,
		client:      client,
		ttl:         ttl,
		notFoundTTL: notFoundTTL,
		logger:      logger.Named("product_cache"),
	}
}

// FindByID returns the cached product or loads and caches it.
func (c *ProductCache) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	key := productKeyPrefix + productID

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if string(data) == notFoundMarker {
			return domain.Product{}, repositories.NewNotFoundError("products.cache", "product %s not found", productID)
		}
		product, decodeErr := decodeProduct(data)
		if decodeErr == nil {
			return product, nil
		}
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(decodeErr))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("redis read failed, continuing with repository", zap.String("key", key), zap.Error(err))
	}

	product, err := c.products.FindByID(ctx, productID)
	if err != nil {
		if repositories.IsNotFound(err) {
			if setErr := c.client.Set(ctx, key, notFoundMarker, c.notFoundTTL).Err(); setErr != nil {
				c.logger.Warn("failed to cache miss", zap.String("key", key), zap.Error(setErr))
			}
		}
		return domain.Product{}, err
	}

	encoded, err := encodeProduct(product)
	if err != nil {
		c.logger.Warn("failed to encode product", zap.String("product_id", productID), zap.Error(err))
		return product, nil
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache product", zap.String("key", key), zap.Error(err))
	}
	return product, nil
}

// Invalidate drops the entries for productIDs. Failures are logged.
func (c *ProductCache) Invalidate(ctx context.Context, productIDs ...string) {
	if len(productIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		keys = append(keys, productKeyPrefix+id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("failed to invalidate products", zap.Strings("keys", keys), zap.Error(err))
	}
}

type cachedProduct struct {
	ID               string    `json:"id"`
	ManufacturerID   string    `json:"manufacturerId"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	Category         string    `json:"category,omitempty"`
	SKU              string    `json:"sku,omitempty"`
	Barcode          string    `json:"barcode,omitempty"`
	Price            string    `json:"price"`
	StockQuantity    int       `json:"stockQuantity"`
	MinOrderQuantity int       `json:"minOrderQuantity,omitempty"`
	MaxOrderQuantity int       `json:"maxOrderQuantity,omitempty"`
	Active           bool      `json:"active"`
	ImageURLs        []string  `json:"imageUrls,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func encodeProduct(p domain.Product) ([]byte, error) {
	return json.Marshal(cachedProduct{
		ID:               p.ID,
		ManufacturerID:   p.ManufacturerID,
		Name:             p.Name,
		Description:      p.Description,
		Category:         p.Category,
		SKU:              p.SKU,
		Barcode:          p.Barcode,
		Price:            p.Price.String(),
		StockQuantity:    p.StockQuantity,
		MinOrderQuantity: p.MinOrderQuantity,
		MaxOrderQuantity: p.MaxOrderQuantity,
		Active:           p.Active,
		ImageURLs:        p.ImageURLs,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	})
}

func decodeProduct(data []byte) (domain.Product, error) {
	var c cachedProduct
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Product{}, err
	}
	price, err := decimal.NewFromString(c.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("decode price %q: %w", c.Price, err)
	}
	return domain.Product{
		ID:               c.ID,
		ManufacturerID:   c.ManufacturerID,
		Name:             c.Name,
		Description:      c.Description,
		Category:         c.Category,
		SKU:              c.SKU,
		Barcode:          c.Barcode,
		Price:            price,
		StockQuantity:    c.StockQuantity,
		MinOrderQuantity: c.MinOrderQuantity,
		MaxOrderQuantity: c.MaxOrderQuantity,
		Active:           c.Active,
		ImageURLs:        c.ImageURLs,
		CreatedAt:        c.CreatedAt.UTC(),
		UpdatedAt:        c.UpdatedAt.UTC(),
	}, nil
}
