package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/engine-companion/pkg/enginedto"
)

const defaultTTL = 10 * time.Minute

// Cache is an optional Redis-backed store of finished analyses, keyed by the
// normalized request. Identical positions asked at identical settings skip
// the engine entirely. Disabled (nil) when no REDIS_URL is configured; the
// API contract is unchanged either way.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func New(redisURL string, ttl time.Duration, log *zap.Logger) (*Cache, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url required")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{rdb: rdb, ttl: ttl, log: log}, nil
}

func (c *Cache) Get(ctx context.Context, req enginedto.AnalyzeRequest) (*enginedto.AnalyzeResponse, bool) {
	raw, err := c.rdb.Get(ctx, Key(req)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Warn("cache get", zap.Error(err))
		return nil, false
	}
	var resp enginedto.AnalyzeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.log.Warn("cache decode", zap.Error(err))
		return nil, false
	}
	return &resp, true
}

func (c *Cache) Set(ctx context.Context, req enginedto.AnalyzeRequest, resp *enginedto.AnalyzeResponse) {
	raw, err := json.Marshal(resp)
	if err != nil {
		c.log.Warn("cache encode", zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, Key(req), raw, c.ttl).Err(); err != nil {
		c.log.Warn("cache set", zap.Error(err))
	}
}

func (c *Cache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Key derives the cache key from every field that changes the engine's
// answer. FEN contains spaces, so the composite is hashed.
func Key(req enginedto.AnalyzeRequest) string {
	composite := strings.Join([]string{
		req.FEN,
		strings.Join(req.Moves, " "),
		strconv.Itoa(req.Depth),
		strconv.Itoa(req.MultiPV),
		strconv.Itoa(req.MoveTimeMs),
	}, "|")
	sum := sha256.Sum256([]byte(composite))
	return "analysis:" + hex.EncodeToString(sum[:16])
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
