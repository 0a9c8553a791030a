package bus

import (
	"context"
	"log/slog"
	"sync"

	"identity/config"
	"identity/internal/domain/lifecycle"

	"cloud.google.com/go/pubsub/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// googleServer pulls requests from one subscription per pattern and publishes
// each reply to the topic named by the request's reply_to attribute.
type googleServer struct {
	cfg        config.TransportConfig
	dispatcher Dispatcher
	logger     *slog.Logger
	client     *pubsub.Client

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
	cancel     context.CancelFunc
	stopped    bool
	ready      chan struct{}
	done       chan struct{}
}

func newGoogleServer(ctx context.Context, cfg config.TransportConfig, dispatcher Dispatcher, logger *slog.Logger) (*googleServer, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOptions(cfg)...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pubsub client")
	}

	return &googleServer{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger,
		client:     client,
		publishers: make(map[string]*pubsub.Publisher),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

func clientOptions(cfg config.TransportConfig) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts,
			option.WithEndpoint(cfg.Endpoint),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	return opts
}

// Ready is closed once a receiver runs for every pattern.
func (s *googleServer) Ready() <-chan struct{} {
	return s.ready
}

// Serve receives on every pattern subscription until the server is stopped.
func (s *googleServer) Serve(ctx context.Context) error {
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

	group, groupCtx := errgroup.WithContext(ctx)
	for _, pattern := range s.dispatcher.Patterns() {
		subscriptionID := s.cfg.SubscriptionPrefix + pattern
		subscriber := s.client.Subscriber(subscriptionID)
		group.Go(func() error {
			err := subscriber.Receive(groupCtx, func(ctx context.Context, msg *pubsub.Message) {
				s.handle(ctx, pattern, msg)
			})

			return errors.Wrapf(err, "failed to receive from subscription %s", subscriptionID)
		})
	}

	close(s.ready)

	s.logger.Info("Serving Google Pub/Sub transport",
		slog.String("project_id", s.cfg.ProjectID),
		slog.String("subscription_prefix", s.cfg.SubscriptionPrefix),
	)

	return group.Wait()
}

// handle acknowledges every request, nothing is redelivered.
func (s *googleServer) handle(ctx context.Context, pattern string, msg *pubsub.Message) {
	defer msg.Ack()

	reply := s.dispatcher.Dispatch(ctx, pattern, msg.Data, msg.Attributes)

	replyTo := msg.Attributes[attrReplyTo]
	if replyTo == "" {
		s.logger.Warn("Message has no reply_to attribute, dropping reply",
			slog.String("pattern", pattern),
			slog.String("message_id", msg.ID),
		)

		return
	}

	result := s.publisher(replyTo).Publish(ctx, &pubsub.Message{
		Data:       reply,
		Attributes: replyAttributes(msg.Attributes),
	})
	if _, err := result.Get(ctx); err != nil {
		s.logger.Error("Failed to publish reply",
			slog.String("pattern", pattern),
			slog.String("reply_to", replyTo),
			slog.Any("error", err),
		)
	}
}

func (s *googleServer) publisher(topicID string) *pubsub.Publisher {
	s.mu.Lock()
	defer s.mu.Unlock()

	publisher, ok := s.publishers[topicID]
	if !ok {
		publisher = s.client.Publisher(topicID)
		s.publishers[topicID] = publisher
	}

	return publisher
}

func (s *googleServer) stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("Shutting down Google Pub/Sub transport")

	if cancel != nil {
		cancel()

		waitCtx, cancelWait := context.WithTimeout(ctx, lifecycle.DefaultTimeout)
		defer cancelWait()
		if err := waitDone(waitCtx, s.done); err != nil {
			s.logger.Warn("Receivers did not stop in time", slog.Any("error", err))
		}
	}

	s.mu.Lock()
	for _, publisher := range s.publishers {
		publisher.Stop()
	}
	s.mu.Unlock()

	return errors.WithStack(s.client.Close())
}
