// Package bus serves the RPC patterns over a message bus. The binding is chosen by
// transport.provider and owns its connection for the lifetime of the process.
package bus

import (
	"context"
	"log/slog"

	"identity/config"
	"identity/internal/delivery"
	"identity/internal/delivery/rpc"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// Message attributes used by the request/reply bindings.
const (
	attrReplyTo       = "reply_to"
	attrCorrelationID = "correlation_id"
	attrRequestID     = "request_id"
)

// Dispatcher turns a request message into an encoded reply.
type Dispatcher interface {
	Patterns() []string
	Dispatch(ctx context.Context, pattern string, body []byte, metadata map[string]string) []byte
}

type server interface {
	delivery.Delivery
	// Ready is closed once the binding receives on every pattern.
	Ready() <-chan struct{}
	stop(ctx context.Context) error
}

// Params holds dependencies for the bus server, injected by Fx.
type Params struct {
	fx.In

	Lc     fx.Lifecycle
	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
	Router *rpc.Router
}

// NewServer creates the binding configured by transport.provider.
func NewServer(params Params) (delivery.Delivery, error) {
	cfg := params.Config.Transport
	logger := params.Logger.With(slog.String("transport", cfg.Provider))

	var (
		srv server
		err error
	)
	switch cfg.Provider {
	case config.TransportNATS:
		srv = newNATSServer(cfg, params.Config.Env.ServiceName, params.Router, logger)
	case config.TransportGoogle:
		srv, err = newGoogleServer(params.Ctx, cfg, params.Router, logger)
	case config.TransportGoCloud:
		srv = newGoCloudServer(cfg, params.Router, logger)
	default:
		return nil, errors.Errorf("unknown transport provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	stopped := make(chan struct{})
	params.Lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go announceReady(srv, stopped, params.Router.Patterns(), logger)

			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stopped)

			return srv.stop(ctx)
		},
	})

	return srv, nil
}

// announceReady logs once the binding is receiving. Nothing is logged when it
// stops first.
func announceReady(srv server, stopped <-chan struct{}, patterns []string, logger *slog.Logger) {
	select {
	case <-srv.Ready():
		logger.Info("Bus transport ready", slog.Any("patterns", patterns))
	case <-stopped:
	}
}

// replyAttributes copies the correlation values of a request onto its reply.
func replyAttributes(request map[string]string) map[string]string {
	attrs := make(map[string]string, 2)
	for _, key := range []string{attrCorrelationID, attrRequestID} {
		if value, ok := request[key]; ok {
			attrs[key] = value
		}
	}

	return attrs
}

// waitDone blocks until done is closed or ctx expires.
func waitDone(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "timed out waiting for in-flight messages")
	}
}
