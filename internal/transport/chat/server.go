package chat

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lca-assistant/internal/common/config"
	"lca-assistant/internal/common/logger"
)

// Server is the HTTP front of the assistant.
type Server struct {
	echo    *echo.Echo
	address string
	checker *Checker
	logger  logger.Logger
}

// NewServer wires the chat, health and metrics routes. limiter may be nil.
func NewServer(cfg config.ServerConfig, chat *Handler, checker *Checker, limiter *RateLimiter, log logger.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = config.GetDuration(cfg.ReadTimeout)
	e.Server.WriteTimeout = config.GetDuration(cfg.WriteTimeout)
	e.IPExtractor = ipExtractor(cfg.TrustedProxies, log)

	e.Use(middleware.Recover())
	e.Use(RequestID())
	e.Use(RequestLogger(log))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("", limiter.Middleware())
	api.POST("/api/chat", chat.Chat)

	return &Server{
		echo:    e,
		address: cfg.Address,
		checker: checker,
		logger:  log,
	}
}

// ipExtractor believes X-Forwarded-For only when the peer is a trusted
// proxy. Without trusted ranges the peer address is the client.
func ipExtractor(trusted []string, log logger.Logger) echo.IPExtractor {
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	ranges := 0
	for _, cidr := range trusted {
		_, ipNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			log.Warn("ignoring invalid trusted proxy range", map[string]interface{}{
				"range": cidr,
				"error": err.Error(),
			})
			continue
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
		ranges++
	}
	if ranges == 0 {
		return echo.ExtractIPDirect()
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// Echo exposes the router for in-process tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.checker.SetReady(true)
	s.logger.Info("chat server listening", map[string]interface{}{"address": s.address})
	if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context, timeout time.Duration) error {
	s.checker.SetReady(false)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}
