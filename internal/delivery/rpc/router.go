package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"slices"
	"time"

	deliverycontext "identity/internal/delivery/context"
	domainerrors "identity/internal/domain/errors"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// HandlerFunc serves one message pattern. The returned value is encoded as the reply response.
type HandlerFunc func(ctx context.Context, data json.RawMessage) (any, error)

// Router maps message patterns to handlers. It is the only place where errors
// are turned into status envelopes.
type Router struct {
	logger   *slog.Logger
	handlers map[string]HandlerFunc
}

// RouterParams holds dependencies for the Router, injected by Fx.
type RouterParams struct {
	fx.In

	Logger      *slog.Logger
	AuthHandler *AuthHandler
}

// NewRouter creates a Router with every pattern of the service registered.
func NewRouter(params RouterParams) *Router {
	router := newRouter(params.Logger)
	params.AuthHandler.RegisterRoutes(router)

	return router
}

func newRouter(logger *slog.Logger) *Router {
	return &Router{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers handler for pattern, replacing any previous one.
func (r *Router) Handle(pattern string, handler HandlerFunc) {
	r.handlers[pattern] = handler
}

// Patterns returns the registered patterns in lexical order.
func (r *Router) Patterns() []string {
	return slices.Sorted(maps.Keys(r.handlers))
}

// Dispatch runs the handler registered for pattern and returns the encoded reply.
// It never fails: every error, including an unknown pattern, becomes an error reply.
func (r *Router) Dispatch(ctx context.Context, pattern string, body []byte, metadata map[string]string) []byte {
	requestID := deliverycontext.RequestIDFromMetadata(metadata)
	ctx = deliverycontext.WithRequestScope(ctx, r.logger, requestID)
	logger := deliverycontext.GetLoggerOrDefault(ctx, r.logger)

	req := decodeRequest(body)
	reply := &Reply{ID: req.ID, IsDisposed: true}

	handler, ok := r.handlers[pattern]
	if !ok {
		logger.Warn("No handler for message pattern", slog.String("pattern", pattern))
		reply.Err = domainerrors.ToEnvelope(domainerrors.ErrNoHandler)

		return r.encode(logger, reply)
	}

	start := time.Now()
	result, err := handler(ctx, req.Data)
	if err != nil {
		reply.Err = domainerrors.ToEnvelope(err)
		logFailure(logger, pattern, err, reply.Err)
	} else {
		reply.Response = result
	}

	logger.Debug("Message handled",
		slog.String("pattern", pattern),
		slog.Duration("latency", time.Since(start)),
	)

	return r.encode(logger, reply)
}

func (r *Router) encode(logger *slog.Logger, reply *Reply) []byte {
	data, err := json.Marshal(reply)
	if err == nil {
		return data
	}

	logger.Error("Failed to encode reply", slog.Any("error", err))
	fallback := &Reply{
		ID:         reply.ID,
		Err:        domainerrors.ToEnvelope(domainerrors.NewInternalError(err, "failed to encode reply")),
		IsDisposed: true,
	}
	data, _ = json.Marshal(fallback)

	return data
}

func logFailure(logger *slog.Logger, pattern string, err error, envelope *domainerrors.Envelope) {
	attrs := []any{
		slog.String("pattern", pattern),
		slog.Int("status", envelope.Status),
		slog.String("message", envelope.Message),
	}

	var internalErr *domainerrors.InternalError
	if errors.As(err, &internalErr) {
		logger.Error("Message failed", append(attrs, slog.Any("error", err))...)

		return
	}

	logger.Info("Message rejected", attrs...)
}
