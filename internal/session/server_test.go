package session

import (
	"context"
	"testing"

	"github.com/amoylab/osrf/internal/i18n"
	"github.com/amoylab/osrf/internal/protocol"
	"github.com/amoylab/osrf/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const clientAddr = "opensrf@localhost/client_1"

// runRequest delivers one REQUEST on a fresh server stack and returns what
// the stack sent back
func runRequest(t *testing.T, h HandlerFunc) []*protocol.Message {
	t.Helper()
	st, tr := newServerStack(h)
	tr.deliver(t, clientAddr, "thread-1", protocol.NewRequest(4, "echo", []any{"x"}))

	_, err := st.Receive(context.Background(), 0)
	require.NoError(t, err)

	var msgs []*protocol.Message
	for _, env := range tr.outbox() {
		assert.Equal(t, clientAddr, env.Recipient)
		assert.Equal(t, "thread-1", env.Thread)
		msgs = append(msgs, decodeEnvelope(t, env)...)
	}
	return msgs
}

func TestServerRequest_CompleteIsIdempotent(t *testing.T) {
	var sent []int
	msgs := runRequest(t, func(ctx context.Context, s *ServerSession, req *ServerRequest) {
		require.NoError(t, req.RespondComplete(ctx, "done"))
		sent = append(sent, len(s.stack.transport.(*scriptTransport).outbox()))
		require.NoError(t, req.RespondComplete(ctx, "again"))
		sent = append(sent, len(s.stack.transport.(*scriptTransport).outbox()))
		assert.True(t, req.Complete())
		assert.False(t, req.CompleteTime().IsZero())
	})

	assert.Equal(t, []int{1, 1}, sent)
	require.Len(t, msgs, 2)
	assert.Equal(t, "done", msgs[0].Payload.(*protocol.Result).Content)
	assert.Equal(t, protocol.StatusComplete, msgs[1].StatusOf().Code())
}

func TestServerRequest_AtomicAggregation(t *testing.T) {
	st, tr := newServerStack(HandlerFunc(func(ctx context.Context, _ *ServerSession, req *ServerRequest) {
		req.SetAtomic(true)
		require.NoError(t, req.Respond(ctx, "a"))
		require.NoError(t, req.Respond(ctx, "b"))
		require.NoError(t, req.RespondComplete(ctx, "c"))
	}))
	tr.deliver(t, clientAddr, "thread-1", protocol.NewRequest(0, "echo.atomic", nil))
	_, err := st.Receive(context.Background(), 0)
	require.NoError(t, err)

	out := tr.outbox()
	require.Len(t, out, 1)
	msgs := decodeEnvelope(t, out[0])
	require.Len(t, msgs, 2)

	assert.Equal(t, protocol.TypeResult, msgs[0].Type)
	assert.Equal(t, []any{"a", "b", "c"}, msgs[0].Payload.(*protocol.Result).Content)
	assert.Equal(t, protocol.TypeStatus, msgs[1].Type)
	assert.Equal(t, protocol.StatusComplete, msgs[1].StatusOf().Code())
	assert.Equal(t, protocol.TextComplete, msgs[1].StatusOf().Text())
}

func TestServerRequest_AtomicWithoutFinalData(t *testing.T) {
	msgs := runRequest(t, func(ctx context.Context, _ *ServerSession, req *ServerRequest) {
		req.SetAtomic(true)
		require.NoError(t, req.RespondComplete(ctx, nil))
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, []any{}, msgs[0].Payload.(*protocol.Result).Content)
}

func TestServerRequest_Streaming(t *testing.T) {
	var seen []int
	st, tr := newServerStack(HandlerFunc(func(ctx context.Context, s *ServerSession, req *ServerRequest) {
		out := s.stack.transport.(*scriptTransport)
		require.NoError(t, req.Respond(ctx, "a"))
		seen = append(seen, len(out.outbox()))
		require.NoError(t, req.Respond(ctx, "b"))
		seen = append(seen, len(out.outbox()))
		require.NoError(t, req.RespondComplete(ctx, nil))
	}))
	tr.deliver(t, clientAddr, "thread-1", protocol.NewRequest(2, "stream", nil))
	_, err := st.Receive(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, seen)
	out := tr.outbox()
	require.Len(t, out, 3)

	for i, want := range []string{"a", "b"} {
		msgs := decodeEnvelope(t, out[i])
		require.Len(t, msgs, 1)
		assert.Equal(t, 2, msgs[0].ThreadTrace)
		assert.Equal(t, want, msgs[0].Payload.(*protocol.Result).Content)
	}
	last := decodeEnvelope(t, out[2])
	require.Len(t, last, 1)
	assert.Equal(t, protocol.StatusComplete, last[0].StatusOf().Code())
}

func TestServerSession_Lifecycle(t *testing.T) {
	ctx := context.Background()
	var events []string
	st, tr := newServerStack(HandlerFunc(func(ctx context.Context, s *ServerSession, req *ServerRequest) {
		events = append(events, "handle:"+req.Method())
		_ = req.RespondComplete(ctx, nil)
	}))

	tr.deliver(t, clientAddr, "thread-9", protocol.NewConnect(0))
	conv, err := st.Receive(ctx, 0)
	require.NoError(t, err)
	ses := conv.(*ServerSession)
	for _, ev := range []string{EventPreRequest, EventPostRequest, EventDisconnect, EventDeath} {
		ses.RegisterCallback(ev, func(*ServerSession) { events = append(events, ev) })
	}

	assert.Equal(t, RoleServer, ses.Role())
	assert.Equal(t, mathService, ses.Service())
	assert.Equal(t, clientAddr, ses.RemoteID())
	assert.Equal(t, Connected, ses.State())

	ack := decodeEnvelope(t, tr.outbox()[0])
	require.Len(t, ack, 1)
	assert.Equal(t, 0, ack[0].ThreadTrace)
	assert.Equal(t, protocol.StatusOK, ack[0].StatusOf().Code())
	assert.Equal(t, protocol.TextConnectOK, ack[0].StatusOf().Text())

	tr.deliver(t, clientAddr, "thread-9", protocol.NewRequest(0, "add", []any{1, 2}))
	tr.deliver(t, clientAddr, "thread-9", protocol.NewDisconnect(0))
	_, err = st.Receive(ctx, 0)
	require.NoError(t, err)
	_, err = st.Receive(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, Disconnected, ses.State())

	ses.Data()["user"] = "admin"
	ses.Cleanup()
	assert.Nil(t, st.Registry().Get("thread-9"))
	assert.Equal(t, []string{EventPreRequest, "handle:add", EventPostRequest, EventDisconnect, EventDeath}, events)
}

func TestServerSession_AdoptsClientContext(t *testing.T) {
	ctx := context.Background()
	st, tr := newServerStack(echoHandler)

	req := protocol.NewRequest(0, "echo", []any{"hi"})
	req.Locale = "fr-CA"
	req.Ingress = "gateway"
	body, err := protocol.Encode(req)
	require.NoError(t, err)
	tr.inbox = append(tr.inbox, &transport.Envelope{
		Sender: clientAddr, Recipient: droneAddr, Thread: "thread-2", Body: string(body), Xid: "xid-1",
	})

	conv, err := st.Receive(ctx, 0)
	require.NoError(t, err)
	ses := conv.(*ServerSession)
	assert.Equal(t, "fr-CA", ses.Locale())
	assert.Equal(t, "xid-1", ses.Xid())
	assert.Equal(t, "gateway", st.Registry().Ingress())

	out := tr.outbox()
	require.Len(t, out, 2)
	assert.Equal(t, "xid-1", out[0].Xid)
	msgs := decodeEnvelope(t, out[0])
	assert.Equal(t, "fr-CA", msgs[0].Locale)
	assert.Equal(t, "gateway", msgs[0].Ingress)
}

func TestServerSession_StatusTexts(t *testing.T) {
	ctx := context.Background()
	tr := newScriptTransport(droneAddr)
	st := NewStack(zap.NewNop(), tr, testConfig(), WithHandler(mathService, echoHandler), WithTranslator(i18n.NewI18n()))
	ses := st.newServerSession("thread-3")
	ses.setRemoteID(clientAddr)

	require.NoError(t, ses.SendMethodNotFound(ctx, 1, "pow"))
	require.NoError(t, ses.SendTimeout(ctx))
	require.NoError(t, ses.SendException(ctx, 2, protocol.StatusInternalServerError, "boom"))

	out := tr.outbox()
	require.Len(t, out, 3)

	notFound := decodeEnvelope(t, out[0])[0]
	assert.Equal(t, 1, notFound.ThreadTrace)
	assert.Equal(t, protocol.StatusNotFound, notFound.StatusOf().Code())
	assert.Equal(t, "Method [pow] not found for opensrf.math", notFound.StatusOf().Text())

	timeout := decodeEnvelope(t, out[1])[0]
	assert.Equal(t, 0, timeout.ThreadTrace)
	assert.Equal(t, protocol.StatusTimeout, timeout.StatusOf().Code())
	assert.Equal(t, protocol.TextTimeout, timeout.StatusOf().Text())

	exc := decodeEnvelope(t, out[2])[0]
	_, ok := exc.Payload.(*protocol.MethodException)
	assert.True(t, ok)
	assert.Equal(t, "boom", exc.StatusOf().Text())
}
