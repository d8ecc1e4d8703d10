package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"vpnshop/internal/metrics"
)

const (
	defaultUpdateTTL = 10 * time.Minute
	updateKeyPrefix  = "vpnshop:tg:update:"
)

// UpdateLog remembers Telegram update IDs for a while. FirstSeen reports
// whether id is new and records it in the same step.
type UpdateLog interface {
	FirstSeen(ctx context.Context, id int) (bool, error)
}

// RedisUpdateLog shares seen IDs between bot replicas.
type RedisUpdateLog struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisUpdateLog(rdb redis.Cmdable, ttl time.Duration) *RedisUpdateLog {
	if ttl <= 0 {
		ttl = defaultUpdateTTL
	}
	return &RedisUpdateLog{rdb: rdb, ttl: ttl}
}

func (l *RedisUpdateLog) FirstSeen(ctx context.Context, id int) (bool, error) {
	err := l.rdb.SetArgs(ctx, updateKeyPrefix+strconv.Itoa(id), 1, redis.SetArgs{
		Mode: "NX",
		TTL:  l.ttl,
	}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// MemoryUpdateLog is the single-process fallback.
type MemoryUpdateLog struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	expires map[int]time.Time
	sweepAt time.Time
}

func NewMemoryUpdateLog(ttl time.Duration) *MemoryUpdateLog {
	if ttl <= 0 {
		ttl = defaultUpdateTTL
	}
	return &MemoryUpdateLog{ttl: ttl, now: time.Now, expires: map[int]time.Time{}}
}

func (l *MemoryUpdateLog) FirstSeen(_ context.Context, id int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.After(l.sweepAt) {
		for k, exp := range l.expires {
			if !exp.After(now) {
				delete(l.expires, k)
			}
		}
		l.sweepAt = now.Add(l.ttl)
	}
	if exp, ok := l.expires[id]; ok && exp.After(now) {
		return false, nil
	}
	l.expires[id] = now.Add(l.ttl)
	return true, nil
}

// OpenUpdateLog uses Redis at addr when it answers a ping. With no addr, or
// when the ping fails, it returns a MemoryUpdateLog; the error is then only
// worth a warning.
func OpenUpdateLog(ctx context.Context, addr, pass string, db int, ttl time.Duration) (UpdateLog, error) {
	if addr == "" {
		return NewMemoryUpdateLog(ttl), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return NewMemoryUpdateLog(ttl), err
	}
	return NewRedisUpdateLog(rdb, ttl), nil
}

// DropRepeatedUpdates answers 200 to webhook deliveries whose update_id was
// already handled, so Telegram stops retrying them. Bodies that do not carry
// an update_id pass through, as does everything when the log errors.
func DropRepeatedUpdates(updates UpdateLog, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return next(c)
			}
			req.Body = io.NopCloser(bytes.NewReader(body))

			var upd tele.Update
			if json.Unmarshal(body, &upd) != nil || upd.ID == 0 {
				return next(c)
			}
			first, err := updates.FirstSeen(req.Context(), upd.ID)
			if err != nil {
				logger.Warn("update log unavailable", zap.Int("update_id", upd.ID), zap.Error(err))
				return next(c)
			}
			if !first {
				metrics.IncBotUpdate("duplicate")
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
