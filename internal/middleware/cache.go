package middleware

import (
    "bytes"
    "context"
    "encoding/json"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/datepoll/internal/config"
    "github.com/iliyamo/datepoll/internal/logging"
    "github.com/iliyamo/datepoll/internal/utils"
)

// captureWriter tees the response body into buf, up to limit bytes.
type captureWriter struct {
    http.ResponseWriter
    status    int
    buf       bytes.Buffer
    limit     int64
    truncated bool
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }

func (cw *captureWriter) Write(b []byte) (int, error) {
    if !cw.truncated {
        if cw.limit > 0 && int64(cw.buf.Len()+len(b)) > cw.limit {
            cw.truncated = true
            cw.buf.Reset()
        } else {
            cw.buf.Write(b)
        }
    }
    return cw.ResponseWriter.Write(b)
}

type cachedResponse struct {
    Status int         `json:"s"`
    Header http.Header `json:"h"`
    Body   []byte      `json:"b"`
}

// resourceOf returns the first three path segments, e.g.
// "/api/meetings/abc" for "/api/meetings/abc/top-dates".  Cached entries
// are grouped by resource so a write can drop every view of it.
func resourceOf(path string) string {
    segs := strings.SplitN(strings.Trim(path, "/"), "/", 4)
    if len(segs) > 3 {
        segs = segs[:3]
    }
    return "/" + strings.Join(segs, "/")
}

func resourcePattern(cfg config.CacheConfig, path string) string {
    return cfg.Prefix + ":" + utils.KeyDigest(resourceOf(path)) + ":"
}

// generationKey holds a counter bumped on every invalidation of the
// resource.  It sits outside resourcePattern so invalidation scans skip it.
func generationKey(cfg config.CacheConfig, path string) string {
    return cfg.Prefix + ":gen:" + utils.KeyDigest(resourceOf(path))
}

// storeIfCurrentScript writes the entry only when the resource generation
// still matches the one read before the handler ran.
var storeIfCurrentScript = redis.NewScript(`
    local gen = redis.call('GET', KEYS[2]) or '0'
    if gen ~= ARGV[1] then
        return 0
    end
    redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
    return 1
`)

func currentGeneration(ctx context.Context, rdb *redis.Client, key string) (string, error) {
    gen, err := rdb.Get(ctx, key).Result()
    if err == redis.Nil {
        return "0", nil
    }
    return gen, err
}

// cacheKeyFrom builds "prefix:<resource digest>:<request digest>".
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
    r := c.Request()
    path := r.URL.Path

    var parts []string
    switch strings.ToLower(cfg.KeyStrategy) {
    case "route":
        parts = []string{path}
    case "method_route":
        parts = []string{r.Method, path}
    case "method_route_query":
        parts = []string{r.Method, path, r.URL.RawQuery}
    default: // "route_query"
        parts = []string{path, r.URL.RawQuery}
    }
    return resourcePattern(cfg, path) + utils.KeyDigest(strings.Join(parts, "\x00"))
}

// NewRedisCache replays cached 200 responses for the configured methods and
// drops a resource's entries after any successful write to it.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    ttl := cfg.TTL
    if ttl <= 0 { ttl = 5 * time.Second }
    maxBody := int64(cfg.MaxBodyBytes)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            method := strings.ToUpper(c.Request().Method)
            if !cfg.Methods[method] {
                err := next(c)
                if err == nil && isWrite(method) && c.Response().Status < 300 {
                    invalidate(c.Request().Context(), rdb, cfg, c.Request().URL.Path)
                }
                return err
            }

            ctx := c.Request().Context()
            key := cacheKeyFrom(cfg, c)

            if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
                var cached cachedResponse
                if json.Unmarshal(bs, &cached) == nil && cached.Status != 0 {
                    h := c.Response().Header()
                    for k, vals := range cached.Header {
                        if strings.EqualFold(k, echo.HeaderContentLength) || strings.EqualFold(k, echo.HeaderXRequestID) {
                            continue
                        }
                        h[k] = vals
                    }
                    h.Set("X-Cache", "HIT")
                    c.Response().WriteHeader(cached.Status)
                    _, _ = c.Response().Write(cached.Body)
                    return nil
                }
            } else if err != redis.Nil {
                logging.FromContext(ctx).Warn().Err(err).Msg("cache read failed")
            }

            genKey := generationKey(cfg, c.Request().URL.Path)
            gen, genErr := currentGeneration(ctx, rdb, genKey)

            cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
            c.Response().Writer = cw
            c.Response().Header().Set("X-Cache", "MISS")

            if err := next(c); err != nil {
                return err
            }
            if cw.status != http.StatusOK || cw.truncated || genErr != nil {
                return nil
            }
            payload, err := json.Marshal(cachedResponse{
                Status: cw.status,
                Header: c.Response().Header().Clone(),
                Body:   cw.buf.Bytes(),
            })
            if err == nil {
                args := []interface{}{gen, payload, ttl.Milliseconds()}
                _ = storeIfCurrentScript.Run(context.WithoutCancel(ctx), rdb, []string{key, genKey}, args...).Err()
            }
            return nil
        }
    }
}

func isWrite(method string) bool {
    switch method {
    case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
        return true
    }
    return false
}

// invalidate bumps the resource generation, so responses still being
// rendered are not stored, then deletes the cached entries.
func invalidate(ctx context.Context, rdb *redis.Client, cfg config.CacheConfig, path string) {
    genKey := generationKey(cfg, path)
    pipe := rdb.TxPipeline()
    pipe.Incr(ctx, genKey)
    pipe.Expire(ctx, genKey, time.Hour)
    if _, err := pipe.Exec(ctx); err != nil {
        logging.FromContext(ctx).Warn().Err(err).Msg("cache generation bump failed")
    }

    prefix := resourcePattern(cfg, path)
    iter := rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
    var keys []string
    for iter.Next(ctx) {
        keys = append(keys, iter.Val())
    }
    if err := iter.Err(); err != nil {
        logging.FromContext(ctx).Warn().Err(err).Msg("cache invalidation scan failed")
        return
    }
    if len(keys) > 0 {
        _ = rdb.Del(ctx, keys...).Err()
    }
}
