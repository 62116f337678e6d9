package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/amoylab/osrf/internal/common/config"
	"github.com/amoylab/osrf/internal/protocol"
	"github.com/amoylab/osrf/internal/transport"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	mathService = "opensrf.math"
	mathAddress = "router@localhost/opensrf.math"
	droneAddr   = "opensrf@localhost/osrf_drone_1"
)

func testConfig() *config.OSRFConfig {
	cfg := &config.OSRFConfig{}
	config.SetDefaults(cfg)
	cfg.Client.RequestTimeout = 2 * time.Second
	return cfg
}

// scriptTransport is a single goroutine transport whose inbox is fed by the
// test and whose outbox is recorded
type scriptTransport struct {
	mu        sync.Mutex
	address   string
	connected bool
	inbox     []*transport.Envelope
	sent      []*transport.Envelope
	onSend    func(env *transport.Envelope)
}

var _ transport.Transport = (*scriptTransport)(nil)

func newScriptTransport(address string) *scriptTransport {
	return &scriptTransport{address: address, connected: true}
}

func (t *scriptTransport) Connect(context.Context) error    { t.connected = true; return nil }
func (t *scriptTransport) Disconnect(context.Context) error { t.connected = false; return nil }
func (t *scriptTransport) Connected() bool                  { return t.connected }
func (t *scriptTransport) Address() string                  { return t.address }

func (t *scriptTransport) Send(_ context.Context, env *transport.Envelope) error {
	env.Sender = t.address
	t.mu.Lock()
	t.sent = append(t.sent, env)
	hook := t.onSend
	t.mu.Unlock()
	if hook != nil {
		hook(env)
	}
	return nil
}

func (t *scriptTransport) Receive(ctx context.Context, timeout time.Duration) (*transport.Envelope, error) {
	t.mu.Lock()
	if len(t.inbox) > 0 {
		env := t.inbox[0]
		t.inbox = t.inbox[1:]
		t.mu.Unlock()
		return env, nil
	}
	t.mu.Unlock()

	switch {
	case timeout == 0:
		return nil, nil
	case timeout < 0:
		<-ctx.Done()
		return nil, ctx.Err()
	}
	select {
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *scriptTransport) deliver(tb testing.TB, sender, thread string, msgs ...*protocol.Message) {
	body, err := protocol.Encode(msgs...)
	require.NoError(tb, err)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbox = append(t.inbox, &transport.Envelope{
		Sender:    sender,
		Recipient: t.address,
		Thread:    thread,
		Body:      string(body),
	})
}

func (t *scriptTransport) outbox() []*transport.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*transport.Envelope(nil), t.sent...)
}

func decodeEnvelope(tb testing.TB, env *transport.Envelope) []*protocol.Message {
	msgs, err := protocol.Decode([]byte(env.Body))
	require.NoError(tb, err)
	return msgs
}

func newClientStack(lg *zap.Logger) (*Stack, *scriptTransport) {
	tr := newScriptTransport("opensrf@localhost/client_1")
	return NewStack(lg, tr, testConfig()), tr
}

func newServerStack(h RequestHandler) (*Stack, *scriptTransport) {
	tr := newScriptTransport(droneAddr)
	return NewStack(zap.NewNop(), tr, testConfig(), WithHandler(mathService, h)), tr
}

// serve runs a server stack for service on the bus until the test ends
func serve(t *testing.T, bus *transport.Bus, cfg *config.OSRFConfig, service string, h RequestHandler) {
	ep := bus.Endpoint(cfg.ServiceAddress(service))
	require.NoError(t, ep.Connect(context.Background()))
	st := NewStack(zap.NewNop(), ep, cfg, WithHandler(service, h))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ctx.Err() == nil {
			_, _ = st.Receive(ctx, 20*time.Millisecond)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = ep.Disconnect(context.Background())
	})
}

func busClientStack(t *testing.T, bus *transport.Bus, cfg *config.OSRFConfig, address string) *Stack {
	ep := bus.Endpoint(address)
	require.NoError(t, ep.Connect(context.Background()))
	t.Cleanup(func() { _ = ep.Disconnect(context.Background()) })
	return NewStack(zap.NewNop(), ep, cfg)
}

// echoHandler answers every request with its params, one RESULT each, then completes
var echoHandler = HandlerFunc(func(ctx context.Context, _ *ServerSession, req *ServerRequest) {
	for _, p := range req.Params() {
		_ = req.Respond(ctx, p)
	}
	_ = req.RespondComplete(ctx, nil)
})

// answerHandler sends its first param with the completion status in one envelope
var answerHandler = HandlerFunc(func(ctx context.Context, _ *ServerSession, req *ServerRequest) {
	var data any
	if len(req.Params()) > 0 {
		data = req.Params()[0]
	}
	_ = req.RespondComplete(ctx, data)
})
