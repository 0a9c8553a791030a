package bus

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"identity/config"
	"identity/internal/domain/lifecycle"

	"github.com/pkg/errors"
	"gocloud.dev/pubsub"
	_ "gocloud.dev/pubsub/mempubsub"
	_ "gocloud.dev/pubsub/natspubsub"
	"golang.org/x/sync/errgroup"
)

const patternPlaceholder = "{pattern}"

// goCloudServer serves the patterns over portable gocloud.dev subscriptions.
// Replies go to the topic URL carried in the request's reply_to metadata.
type goCloudServer struct {
	cfg        config.TransportConfig
	dispatcher Dispatcher
	logger     *slog.Logger

	mu            sync.Mutex
	subscriptions []*pubsub.Subscription
	topics        map[string]*pubsub.Topic
	cancel        context.CancelFunc
	stopped       bool
	ready         chan struct{}
	done          chan struct{}
}

func newGoCloudServer(cfg config.TransportConfig, dispatcher Dispatcher, logger *slog.Logger) *goCloudServer {
	return &goCloudServer{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger,
		topics:     make(map[string]*pubsub.Topic),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (s *goCloudServer) subscriptionURL(pattern string) string {
	return strings.ReplaceAll(s.cfg.SubscriptionURL, patternPlaceholder, pattern)
}

// Ready is closed once every pattern subscription is open.
func (s *goCloudServer) Ready() <-chan struct{} {
	return s.ready
}

// Serve opens a subscription per pattern and receives until the server is stopped.
func (s *goCloudServer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()

		return nil
	}
	s.cancel = cancel
	s.mu.Unlock()
	defer close(s.done)

	patterns := s.dispatcher.Patterns()
	subscriptions := make(map[string]*pubsub.Subscription, len(patterns))
	for _, pattern := range patterns {
		url := s.subscriptionURL(pattern)
		subscription, err := pubsub.OpenSubscription(ctx, url)
		if err != nil {
			return errors.Wrapf(err, "failed to open subscription %s", url)
		}
		subscriptions[pattern] = subscription

		s.mu.Lock()
		s.subscriptions = append(s.subscriptions, subscription)
		s.mu.Unlock()
	}
	close(s.ready)

	s.logger.Info("Serving gocloud transport", slog.String("subscription_url", s.cfg.SubscriptionURL))

	group, groupCtx := errgroup.WithContext(ctx)
	for pattern, subscription := range subscriptions {
		group.Go(func() error {
			for {
				msg, err := subscription.Receive(groupCtx)
				if err != nil {
					if groupCtx.Err() != nil {
						return nil
					}

					return errors.Wrapf(err, "failed to receive on %s", pattern)
				}
				group.Go(func() error {
					s.handle(groupCtx, pattern, msg)

					return nil
				})
			}
		})
	}

	return group.Wait()
}

func (s *goCloudServer) handle(ctx context.Context, pattern string, msg *pubsub.Message) {
	defer msg.Ack()

	reply := s.dispatcher.Dispatch(ctx, pattern, msg.Body, msg.Metadata)

	replyTo := msg.Metadata[attrReplyTo]
	if replyTo == "" {
		s.logger.Warn("Message has no reply_to metadata, dropping reply", slog.String("pattern", pattern))

		return
	}

	topic, err := s.topic(ctx, replyTo)
	if err != nil {
		s.logger.Error("Failed to open reply topic", slog.String("reply_to", replyTo), slog.Any("error", err))

		return
	}

	if err := topic.Send(ctx, &pubsub.Message{
		Body:     reply,
		Metadata: replyAttributes(msg.Metadata),
	}); err != nil {
		s.logger.Error("Failed to send reply",
			slog.String("pattern", pattern),
			slog.String("reply_to", replyTo),
			slog.Any("error", err),
		)
	}
}

func (s *goCloudServer) topic(ctx context.Context, url string) (*pubsub.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if topic, ok := s.topics[url]; ok {
		return topic, nil
	}

	topic, err := pubsub.OpenTopic(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open topic %s", url)
	}
	s.topics[url] = topic

	return topic, nil
}

func (s *goCloudServer) stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("Shutting down gocloud transport")

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, lifecycle.DefaultTimeout)
	defer cancelShutdown()

	if cancel != nil {
		cancel()
		if err := waitDone(shutdownCtx, s.done); err != nil {
			s.logger.Warn("Receivers did not stop in time", slog.Any("error", err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, subscription := range s.subscriptions {
		if err := subscription.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	for url, topic := range s.topics {
		if err := topic.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to shut down topic %s", url))
		}
	}
	if len(errs) > 0 {
		return errors.Wrap(errs[0], "gocloud transport shutdown")
	}

	return nil
}
