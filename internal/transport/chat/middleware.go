package chat

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"lca-assistant/internal/common/logger"
)

const requestIDKey = "requestId"

// RequestID reuses an inbound X-Request-ID or mints a new one, and echoes it
// on the response.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.New().String()
			}
			c.Set(requestIDKey, id)
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			return next(c)
		}
	}
}

func requestIDFrom(c echo.Context) string {
	id, _ := c.Get(requestIDKey).(string)
	return id
}

// RequestLogger logs one line per request after it completes.
func RequestLogger(log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}

			log.Info("request", map[string]interface{}{
				"requestId":    requestIDFrom(c),
				"method":       req.Method,
				"uri":          req.RequestURI,
				"route":        c.Path(),
				"status":       res.Status,
				"remoteIp":     c.RealIP(),
				"userAgent":    req.UserAgent(),
				"responseTime": time.Since(start).String(),
				"responseSize": res.Size,
			})
			return nil
		}
	}
}
