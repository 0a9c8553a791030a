package bus

import (
	"context"
	"testing"
	"time"

	"identity/config"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const natsPattern = "auth.verify.user"

func runNATSServer(t *testing.T) string {
	t.Helper()

	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   natsserver.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server did not start")
	}
	t.Cleanup(ns.Shutdown)

	return ns.ClientURL()
}

// blockingDispatcher holds "slow" requests until release is closed.
type blockingDispatcher struct {
	stubDispatcher
	entered chan struct{}
	release chan struct{}
}

func newBlockingDispatcher() *blockingDispatcher {
	return &blockingDispatcher{
		stubDispatcher: stubDispatcher{patterns: []string{natsPattern}},
		entered:        make(chan struct{}, 1),
		release:        make(chan struct{}),
	}
}

func (d *blockingDispatcher) Dispatch(ctx context.Context, pattern string, body []byte, metadata map[string]string) []byte {
	if string(body) == "slow" {
		d.entered <- struct{}{}
		<-d.release
	}

	return d.stubDispatcher.Dispatch(ctx, pattern, body, metadata)
}

func startNATSServer(t *testing.T, dispatcher Dispatcher) (*natsServer, *nats.Conn) {
	t.Helper()

	url := runNATSServer(t)
	srv := newNATSServer(config.TransportConfig{
		Provider:   config.TransportNATS,
		Servers:    []string{url},
		QueueGroup: "identity",
	}, "identity-test", dispatcher, newDiscardLogger())

	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background()) }()

	select {
	case <-srv.Ready():
	case err := <-served:
		t.Fatalf("server exited before becoming ready: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	client, err := nats.Connect(url)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		require.NoError(t, srv.stop(context.Background()))
		require.NoError(t, <-served)
	})

	return srv, client
}

func TestNATSServer_RoundTrip(t *testing.T) {
	_, client := startNATSServer(t, &stubDispatcher{patterns: []string{natsPattern}})

	msg := nats.NewMsg(natsPattern)
	msg.Data = []byte(`{"id":"1","data":"token"}`)
	msg.Header.Set(attrRequestID, "req-1")

	reply, err := client.RequestMsg(msg, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, natsPattern+`|{"id":"1","data":"token"}|req-1`, string(reply.Data))
}

func TestNATSServer_SlowRequestDoesNotBlockPattern(t *testing.T) {
	dispatcher := newBlockingDispatcher()
	_, client := startNATSServer(t, dispatcher)

	slow := make(chan *nats.Msg, 1)
	go func() {
		reply, err := client.Request(natsPattern, []byte("slow"), 5*time.Second)
		if err == nil {
			slow <- reply
		}
		close(slow)
	}()

	select {
	case <-dispatcher.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("slow request was not dispatched")
	}

	fast, err := client.Request(natsPattern, []byte("fast"), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, natsPattern+"|fast|", string(fast.Data))

	close(dispatcher.release)

	reply, ok := <-slow
	require.True(t, ok, "slow request got no reply")
	assert.Equal(t, natsPattern+"|slow|", string(reply.Data))
}

func TestNATSServer_StopWaitsForInFlightReplies(t *testing.T) {
	dispatcher := newBlockingDispatcher()
	srv, client := startNATSServer(t, dispatcher)

	slow := make(chan *nats.Msg, 1)
	go func() {
		reply, err := client.Request(natsPattern, []byte("slow"), 5*time.Second)
		if err == nil {
			slow <- reply
		}
		close(slow)
	}()

	select {
	case <-dispatcher.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("slow request was not dispatched")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- srv.stop(context.Background()) }()

	select {
	case err := <-stopped:
		t.Fatalf("stop returned before the in-flight reply was sent: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(dispatcher.release)

	require.NoError(t, <-stopped)
	reply, ok := <-slow
	require.True(t, ok, "in-flight request got no reply")
	assert.Equal(t, natsPattern+"|slow|", string(reply.Data))
}
