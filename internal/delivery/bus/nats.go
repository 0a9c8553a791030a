package bus

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"identity/config"
	"identity/internal/domain/lifecycle"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// maxInFlight bounds concurrent requests per server. Delivery blocks when it is reached.
	maxInFlight = 64

	drainPollInterval = 20 * time.Millisecond
)

// natsServer answers requests on queue subscriptions, one per pattern.
// Replicas sharing the queue group split the load; within a replica each
// message is handled on its own goroutine.
type natsServer struct {
	cfg        config.TransportConfig
	name       string
	dispatcher Dispatcher
	logger     *slog.Logger
	inflight   *errgroup.Group

	mu       sync.Mutex
	conn     *nats.Conn
	subs     []*nats.Subscription
	stopped  bool
	stopping chan struct{}
	ready    chan struct{}
}

func newNATSServer(cfg config.TransportConfig, name string, dispatcher Dispatcher, logger *slog.Logger) *natsServer {
	inflight := new(errgroup.Group)
	inflight.SetLimit(maxInFlight)

	return &natsServer{
		cfg:        cfg,
		name:       name,
		dispatcher: dispatcher,
		logger:     logger,
		inflight:   inflight,
		stopping:   make(chan struct{}),
		ready:      make(chan struct{}),
	}
}

// Ready is closed once every pattern is subscribed.
func (s *natsServer) Ready() <-chan struct{} {
	return s.ready
}

// Serve connects, subscribes every pattern and blocks until the server is stopped.
func (s *natsServer) Serve(ctx context.Context) error {
	conn, err := nats.Connect(strings.Join(s.cfg.Servers, ","),
		nats.Name(s.name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.logger.Warn("Disconnected from NATS", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			s.logger.Info("Reconnected to NATS", slog.String("url", conn.ConnectedUrl()))
		}),
	)
	if err != nil {
		return errors.Wrap(err, "failed to connect to nats")
	}

	subs, err := s.subscribe(ctx, conn)
	if err != nil {
		conn.Close()

		return err
	}
	if subs == nil {
		return nil
	}
	close(s.ready)

	s.logger.Info("Serving NATS transport",
		slog.String("url", conn.ConnectedUrl()),
		slog.String("queue_group", s.cfg.QueueGroup),
		slog.Any("patterns", s.dispatcher.Patterns()),
	)

	select {
	case <-s.stopping:
	case <-ctx.Done():
	}

	return nil
}

// subscribe registers a queue subscription per pattern. It returns nil
// subscriptions when the server was stopped before connecting.
func (s *natsServer) subscribe(ctx context.Context, conn *nats.Conn) ([]*nats.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		conn.Close()

		return nil, nil
	}

	subs := make([]*nats.Subscription, 0, len(s.dispatcher.Patterns()))
	for _, pattern := range s.dispatcher.Patterns() {
		sub, err := conn.QueueSubscribe(pattern, s.cfg.QueueGroup, s.handler(ctx, pattern))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to subscribe to %s", pattern)
		}
		subs = append(subs, sub)
	}
	s.conn, s.subs = conn, subs

	return subs, nil
}

func (s *natsServer) handler(ctx context.Context, pattern string) nats.MsgHandler {
	return func(msg *nats.Msg) {
		s.inflight.Go(func() error {
			s.reply(ctx, pattern, msg)

			return nil
		})
	}
}

func (s *natsServer) reply(ctx context.Context, pattern string, msg *nats.Msg) {
	reply := s.dispatcher.Dispatch(ctx, pattern, msg.Data, headerMetadata(msg.Header))
	if msg.Reply == "" {
		s.logger.Warn("Message has no reply subject, dropping reply", slog.String("pattern", pattern))

		return
	}
	if err := msg.Respond(reply); err != nil {
		s.logger.Error("Failed to send reply", slog.String("pattern", pattern), slog.Any("error", err))
	}
}

// stop drains the subscriptions, waits for the in-flight handlers to reply,
// then closes the connection.
func (s *natsServer) stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()

		return nil
	}
	s.stopped = true
	close(s.stopping)
	conn, subs := s.conn, s.subs
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	defer conn.Close()

	s.logger.Info("Draining NATS subscriptions")

	waitCtx, cancel := context.WithTimeout(ctx, lifecycle.DefaultTimeout)
	defer cancel()

	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			s.logger.Warn("Failed to drain subscription", slog.String("subject", sub.Subject), slog.Any("error", err))
		}
	}
	if err := waitDrained(waitCtx, subs); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		_ = s.inflight.Wait()
		close(done)
	}()

	return waitDone(waitCtx, done)
}

// waitDrained blocks until every subscription has delivered its pending messages.
func waitDrained(ctx context.Context, subs []*nats.Subscription) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		valid := false
		for _, sub := range subs {
			if sub.IsValid() {
				valid = true

				break
			}
		}
		if !valid {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "timed out draining subscriptions")
		}
	}
}

// headerMetadata flattens NATS headers to their first values.
func headerMetadata(header nats.Header) map[string]string {
	metadata := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) > 0 {
			metadata[key] = values[0]
		}
	}

	return metadata
}
