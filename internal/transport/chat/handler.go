package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "lca-assistant/internal/common/errors"
	"lca-assistant/internal/common/logger"
	"lca-assistant/internal/common/metrics"
	"lca-assistant/internal/common/validation"
	llmfallback "lca-assistant/internal/workers/ai-conversation/llm-fallback"
	routeintent "lca-assistant/internal/workers/ai-conversation/route-intent"
)

const (
	maxBodyBytes   = 16 << 10
	profileCommand = "/profile"
	helpCommand    = "/help"
)

type Handler struct {
	router         Router
	requestTimeout time.Duration
	errHandler     *apperrors.ErrorHandler
	logger         logger.Logger
}

func NewHandler(router Router, requestTimeout time.Duration, log logger.Logger) *Handler {
	return &Handler{
		router:         router,
		requestTimeout: requestTimeout,
		errHandler:     apperrors.NewErrorHandler(log),
		logger:         log.With(map[string]interface{}{"component": "chat"}),
	}
}

// Chat handles POST /api/chat with body {"message": "..."}.
func (h *Handler) Chat(c echo.Context) error {
	requestID := requestIDFrom(c)

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return h.fail(c, apperrors.NewValidationError("body", "request body could not be read"), requestID)
	}
	if err := validation.ValidateChatRequest(body); err != nil {
		return h.fail(c, err, requestID)
	}

	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return h.fail(c, apperrors.NewValidationError("body", "request body must be a JSON object"), requestID)
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return h.fail(c, apperrors.NewValidationError("message", "message must not be empty"), requestID)
	}

	ctx := c.Request().Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	result, err := h.answer(ctx, message)
	if err != nil {
		return h.fail(c, err, requestID)
	}

	h.logger.Debug("chat answered", map[string]interface{}{
		"requestId": requestID,
		"intent":    string(result.Intent),
		"partial":   result.Partial,
	})
	metrics.ChatRequests.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	return c.JSON(http.StatusOK, ChatResponse{
		Answer:             result.Answer,
		Sources:            result.Sources,
		Intent:             string(result.Intent),
		Partial:            result.Partial,
		UnavailableSources: result.UnavailableSources,
		RequestID:          requestID,
	})
}

// answer handles the slash commands and routes everything else.
func (h *Handler) answer(ctx context.Context, message string) (*routeintent.Result, error) {
	command := strings.ToLower(strings.Fields(message)[0])

	switch command {
	case helpCommand:
		return &routeintent.Result{
			Intent:  routeintent.IntentFallback,
			Answer:  llmfallback.HelpText,
			Sources: []string{},
		}, nil
	case profileCommand:
		company := strings.TrimSpace(message[len(profileCommand):])
		if company == "" {
			return nil, apperrors.NewValidationError("message", "please specify a company name, e.g. /profile Google")
		}
		return h.router.Dispatch(ctx, routeintent.IntentEmployerCount, routeintent.Slots{Employer: company}, message), nil
	}
	return h.router.Route(ctx, message)
}

func (h *Handler) fail(c echo.Context, err error, requestID string) error {
	resp := h.errHandler.Handle(err, requestID)
	metrics.ChatRequests.WithLabelValues(strconv.Itoa(resp.Status)).Inc()
	return c.JSON(resp.Status, ErrorResponse{Error: resp.Message, RequestID: requestID})
}
