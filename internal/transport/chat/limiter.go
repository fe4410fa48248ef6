package chat

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "lca-assistant/internal/common/errors"
	"lca-assistant/internal/common/logger"
	"lca-assistant/internal/common/metrics"
)

const rateLimitKeyPrefix = "ratelimit:chat:"

// RateLimiter is a fixed-window limiter keyed by client IP. A counter
// failure lets the request through.
type RateLimiter struct {
	counter    WindowCounter
	limit      int64
	window     time.Duration
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewRateLimiter(counter WindowCounter, perMinute int, log logger.Logger) *RateLimiter {
	return &RateLimiter{
		counter:    counter,
		limit:      int64(perMinute),
		window:     time.Minute,
		errHandler: apperrors.NewErrorHandler(log),
		logger:     log.With(map[string]interface{}{"component": "rate-limiter"}),
	}
}

func (l *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l == nil || l.counter == nil || l.limit <= 0 {
				return next(c)
			}

			key := rateLimitKeyPrefix + c.RealIP()
			count, err := l.counter.IncrWindow(c.Request().Context(), key, l.window)
			if err != nil {
				l.logger.Warn("rate limiter unavailable, allowing request", map[string]interface{}{
					"requestId": requestIDFrom(c),
					"error":     err.Error(),
				})
				return next(c)
			}

			if count > l.limit {
				metrics.RateLimitRejections.Inc()
				metrics.ChatRequests.WithLabelValues(strconv.Itoa(http.StatusTooManyRequests)).Inc()
				resp := l.errHandler.Handle(apperrors.NewRateLimitedError(key), requestIDFrom(c))
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
				return c.JSON(resp.Status, ErrorResponse{Error: resp.Message, RequestID: requestIDFrom(c)})
			}
			return next(c)
		}
	}
}
