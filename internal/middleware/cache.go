package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/flight-seating/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 {
		cw.buf.Write(b)
	} else if remain := cw.limit - cw.size; remain > 0 {
		if int64(len(b)) <= remain {
			cw.buf.Write(b)
		} else {
			cw.buf.Write(b[:remain])
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// SeatCache caches seat availability responses in Redis. Every flight has
// a generation counter that writes bump with Invalidate; entries are keyed
// by flight and generation, so a response computed before a write can only
// land under a generation no reader asks for any more.
type SeatCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
}

// NewSeatCache returns a cache over rdb. A nil client or a disabled config
// yields a cache whose middleware passes everything through.
func NewSeatCache(cfg config.CacheConfig, rdb *redis.Client) *SeatCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &SeatCache{cfg: cfg, rdb: rdb}
}

func (sc *SeatCache) active() bool {
	return sc != nil && sc.cfg.Enabled && sc.rdb != nil
}

// Flight keys are arbitrary text, hence the hash.
func (sc *SeatCache) flightHash(key string) string {
	sum := sha1.Sum([]byte(key))
	return fmt.Sprintf("%x", sum[:])
}

// flightKey is the Redis key holding the cached availability of a flight
// at generation gen.
func (sc *SeatCache) flightKey(key string, gen int64) string {
	return fmt.Sprintf("%s:flight:%s:%d", sc.cfg.Prefix, sc.flightHash(key), gen)
}

func (sc *SeatCache) genKey(key string) string {
	return fmt.Sprintf("%s:gen:%s", sc.cfg.Prefix, sc.flightHash(key))
}

// genTTL outlives every entry by far; an expired counter restarts at zero
// long after the entries of that generation are gone.
func (sc *SeatCache) genTTL() time.Duration {
	return max(10*sc.cfg.TTL, time.Hour)
}

// generation returns the current generation of a flight, zero if it was
// never invalidated.
func (sc *SeatCache) generation(ctx context.Context, key string) (int64, error) {
	gen, err := sc.rdb.Get(ctx, sc.genKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// entryKey resolves the cache key of a request. It prefers the flight
// route parameter and falls back to the request path and query, which
// have no generation.
func (sc *SeatCache) entryKey(c echo.Context) (string, error) {
	if k := c.Param("key"); k != "" {
		gen, err := sc.generation(c.Request().Context(), k)
		if err != nil {
			return "", err
		}
		return sc.flightKey(k, gen), nil
	}
	r := c.Request()
	sum := sha1.Sum([]byte(r.Method + ":" + r.URL.Path + "?" + r.URL.RawQuery))
	return fmt.Sprintf("%s:route:%x", sc.cfg.Prefix, sum[:]), nil
}

// Invalidate moves a flight to a new generation, so readers stop seeing
// entries stored before. Errors are reported but a stale entry expires
// with the TTL anyway.
func (sc *SeatCache) Invalidate(ctx context.Context, key string) error {
	if !sc.active() {
		return nil
	}
	gk := sc.genKey(key)
	pipe := sc.rdb.TxPipeline()
	pipe.Incr(ctx, gk)
	pipe.Expire(ctx, gk, sc.genTTL())
	_, err := pipe.Exec(ctx)
	return err
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}

// Middleware serves cached 200 responses and stores fresh ones under the
// generation read before the handler ran. Responses larger than
// MaxBodyBytes are not cached. Without Redis the request is served
// uncached.
func (sc *SeatCache) Middleware() echo.MiddlewareFunc {
	if !sc.active() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	maxBody := int64(sc.cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !sc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			ctx := c.Request().Context()
			key, err := sc.entryKey(c)
			if err != nil {
				return next(c)
			}

			if bs, err := sc.rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, echo.HeaderContentLength) {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					_, _ = c.Response().Write(body)
					return nil
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
				return nil
			}
			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			if payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes()); err == nil {
				_ = sc.rdb.SetEx(context.WithoutCancel(ctx), key, payload, sc.cfg.TTL).Err()
			}
			return nil
		}
	}
}
