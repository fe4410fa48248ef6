package chat

import (
	"context"
	"time"

	routeintent "lca-assistant/internal/workers/ai-conversation/route-intent"
)

// Router is the conversational agent behind POST /api/chat.
type Router interface {
	Route(ctx context.Context, message string) (*routeintent.Result, error)
	Dispatch(ctx context.Context, intent routeintent.Intent, slots routeintent.Slots, message string) *routeintent.Result
}

// WindowCounter counts hits per key in a fixed time window.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Pinger is a dependency checked by GET /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Answer             string   `json:"answer"`
	Sources            []string `json:"sources"`
	Intent             string   `json:"intent"`
	Partial            bool     `json:"partial,omitempty"`
	UnavailableSources []string `json:"unavailableSources,omitempty"`
	RequestID          string   `json:"requestId"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}
