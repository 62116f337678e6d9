package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/amoylab/osrf/internal/protocol"
	"github.com/amoylab/osrf/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestClientSession_New(t *testing.T) {
	st, _ := newClientStack(zap.NewNop())
	ses := st.NewClientSession(mathService)

	assert.Equal(t, RoleClient, ses.Role())
	assert.Equal(t, mathService, ses.Service())
	assert.Equal(t, mathAddress, ses.RemoteID())
	assert.Equal(t, mathAddress, ses.OrigRemoteID())
	assert.Equal(t, "en-US", ses.Locale())
	assert.Equal(t, Disconnected, ses.State())
	assert.NotEmpty(t, ses.Thread())
	assert.Same(t, ses, st.Registry().Get(ses.Thread()))

	ses.Cleanup()
	assert.Nil(t, st.Registry().Get(ses.Thread()))
}

func TestClientSession_RequestEnvelope(t *testing.T) {
	ctx := context.Background()
	st, tr := newClientStack(zap.NewNop())
	ses := st.NewClientSession(mathService)
	ses.SetLocale("fr-CA")

	req, err := ses.Request(ctx, "add", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, req.ID())
	assert.Same(t, req, ses.FindRequest(0))

	out := tr.outbox()
	require.Len(t, out, 1)
	assert.Equal(t, mathAddress, out[0].Recipient)
	assert.Equal(t, ses.Thread(), out[0].Thread)
	assert.NotEmpty(t, out[0].Xid)
	assert.Equal(t, ses.Xid(), out[0].Xid)

	msgs := decodeEnvelope(t, out[0])
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeRequest, msgs[0].Type)
	assert.Equal(t, "fr-CA", msgs[0].Locale)
	assert.Equal(t, "opensrf", msgs[0].Ingress)
	method := msgs[0].Payload.(*protocol.Method)
	assert.Equal(t, "add", method.Method)
	assert.Equal(t, []any{float64(2), float64(3)}, method.Params)

	second, err := ses.Request(ctx, "sub")
	require.NoError(t, err)
	assert.Equal(t, 1, second.ID())
	assert.Equal(t, []any{}, second.Params())
	assert.Equal(t, 2, ses.Requests())
}

func TestClientRequest_Correlation(t *testing.T) {
	ctx := context.Background()
	st, tr := newClientStack(zap.NewNop())
	ses := st.NewClientSession(mathService)

	var reqs []*ClientRequest
	for i := 0; i < 5; i++ {
		req, err := ses.Request(ctx, "echo", i)
		require.NoError(t, err)
		reqs = append(reqs, req)
	}

	tr.deliver(t, droneAddr, ses.Thread(), protocol.NewResult(3, "payload-3"))

	for i, req := range reqs {
		if i == 3 {
			continue
		}
		res, err := req.Recv(ctx, 0)
		require.NoError(t, err)
		assert.Nil(t, res, "request %d", i)
	}

	res, err := reqs[3].Recv(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "payload-3", res.Content)
	assert.Equal(t, protocol.StatusOK, res.StatusCode)
	assert.False(t, reqs[3].FirstResponseTime().IsZero())
}

func TestClientRequest_FIFO(t *testing.T) {
	ctx := context.Background()
	st, tr := newClientStack(zap.NewNop())
	ses := st.NewClientSession(mathService)
	req, err := ses.Request(ctx, "stream")
	require.NoError(t, err)

	tr.deliver(t, droneAddr, ses.Thread(), protocol.NewResult(0, "p1"))
	tr.deliver(t, droneAddr, ses.Thread(),
		protocol.NewResult(0, "p2"),
		protocol.NewConnectStatus(0, protocol.StatusComplete, protocol.TextComplete))

	first, err := req.Recv(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "p1", first.Content)

	second, err := req.Recv(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "p2", second.Content)
	assert.True(t, req.Complete())

	start := time.Now()
	third, err := req.Recv(ctx, time.Second)
	require.NoError(t, err)
	assert.Nil(t, third)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, req.CompleteTime().IsZero())
}

func TestClientRequest_TimeoutBudget(t *testing.T) {
	ctx := context.Background()
	st, _ := newClientStack(zap.NewNop())
	ses := st.NewClientSession(mathService)
	req, err := ses.Request(ctx, "slow")
	require.NoError(t, err)

	for _, budget := range []time.Duration{0, 30 * time.Millisecond, 120 * time.Millisecond} {
		start := time.Now()
		res, err := req.Recv(ctx, budget)
		elapsed := time.Since(start)
		require.NoError(t, err)
		assert.Nil(t, res)
		assert.GreaterOrEqual(t, elapsed, budget)
		assert.Less(t, elapsed, budget+time.Second)
	}
}

func TestClientRequest_ContinueResetsTimeout(t *testing.T) {
	ctx := context.Background()
	st, tr := newClientStack(zap.NewNop())
	ses := st.NewClientSession(mathService)
	req, err := ses.Request(ctx, "slow")
	require.NoError(t, err)

	tr.deliver(t, droneAddr, ses.Thread(), protocol.NewConnectStatus(0, protocol.StatusContinue, "Please hold"))

	_, err = req.Recv(ctx, 0)
	require.NoError(t, err)
	assert.True(t, req.resetTimeout.Load())

	start := time.Now()
	res, err := req.Recv(ctx, 60*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestClientRequest_Cleanup(t *testing.T) {
	ctx := context.Background()
	st, _ := newClientStack(zap.NewNop())
	ses := st.NewClientSession(mathService)
	req, err := ses.Request(ctx, "add", 1, 1)
	require.NoError(t, err)

	req.Cleanup()
	req.Cleanup()
	assert.Nil(t, ses.FindRequest(req.ID()))
	assert.Equal(t, 0, ses.Requests())

	_, err = ses.Request(ctx, "add", 1, 1)
	require.NoError(t, err)
	ses.Cleanup()
	assert.Equal(t, 0, ses.Requests())
	assert.Equal(t, 0, st.Registry().Len())
}

func TestClientSession_StaleResponse(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)
	st, tr := newClientStack(zap.New(core))
	ses := st.NewClientSession(mathService)
	req, err := ses.Request(ctx, "add", 1, 2)
	require.NoError(t, err)

	tr.deliver(t, droneAddr, ses.Thread(), protocol.NewResult(42, "stray"))
	conv, err := st.Receive(ctx, 0)
	require.NoError(t, err)
	assert.Same(t, ses, conv)

	assert.Equal(t, 0, req.Pending())
	stale := logs.FilterMessage("pushing response to non-existent request").All()
	require.Len(t, stale, 1)
	assert.Equal(t, zapcore.WarnLevel, stale[0].Level)
	assert.EqualValues(t, 42, stale[0].ContextMap()["trace"])
}

func TestClientSession_ConnectStateMachine(t *testing.T) {
	ctx := context.Background()
	st, tr := newClientStack(zap.NewNop())
	ses := st.NewClientSession(mathService)

	var stateAtSend State
	tr.onSend = func(env *transport.Envelope) {
		stateAtSend = ses.State()
		msgs := decodeEnvelope(t, env)
		require.Len(t, msgs, 1)
		assert.Equal(t, protocol.TypeConnect, msgs[0].Type)
		assert.Equal(t, 0, msgs[0].ThreadTrace)

		// a CONTINUE does not complete the handshake
		tr.deliver(t, droneAddr, env.Thread, protocol.NewConnectStatus(3, protocol.StatusContinue, ""))
		tr.deliver(t, droneAddr, env.Thread, protocol.NewConnectStatus(0, protocol.StatusOK, protocol.TextConnectOK))
	}

	require.NoError(t, ses.Connect(ctx, time.Second))
	assert.Equal(t, Connecting, stateAtSend)
	assert.Equal(t, Connected, ses.State())
	assert.Equal(t, droneAddr, ses.RemoteID())

	tr.onSend = nil
	require.NoError(t, ses.Connect(ctx, time.Second))
	assert.Len(t, tr.outbox(), 1)

	require.NoError(t, ses.Disconnect(ctx))
	assert.Equal(t, Disconnected, ses.State())
	out := tr.outbox()
	require.Len(t, out, 2)
	assert.Equal(t, droneAddr, out[1].Recipient)
	assert.Equal(t, protocol.TypeDisconnect, decodeEnvelope(t, out[1])[0].Type)
}

func TestClientSession_ConnectIgnoresOKForOtherTrace(t *testing.T) {
	ctx := context.Background()
	st, tr := newClientStack(zap.NewNop())
	ses := st.NewClientSession(mathService)

	var stateAfterOK State
	tr.onSend = func(env *transport.Envelope) {
		tr.deliver(t, droneAddr, env.Thread, protocol.NewConnectStatus(7, protocol.StatusOK, "OK"))
		_, err := st.Receive(ctx, 0)
		require.NoError(t, err)
		stateAfterOK = ses.State()
	}

	err := ses.Connect(ctx, 100*time.Millisecond)
	assert.Equal(t, Connecting, stateAfterOK)

	var unavailable *ServiceUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, Disconnected, ses.State())
}

func TestClientSession_ConnectTimeoutResetsRemote(t *testing.T) {
	ctx := context.Background()
	st, tr := newClientStack(zap.NewNop())
	ses := st.NewClientSession(mathService)

	// a stray envelope pins the session to a backend
	tr.deliver(t, droneAddr, ses.Thread(), protocol.NewResult(9, "stale"))
	_, err := st.Receive(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, droneAddr, ses.RemoteID())

	start := time.Now()
	err = ses.Connect(ctx, 80*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	var unavailable *ServiceUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, mathService, unavailable.Service)
	assert.True(t, IsRetryable(err))
	assert.NotEqual(t, Connected, ses.State())
	assert.Equal(t, ses.OrigRemoteID(), ses.RemoteID())

	// the CONNECT went to the pinned backend
	out := tr.outbox()
	require.Len(t, out, 1)
	assert.Equal(t, droneAddr, out[0].Recipient)
}

func TestClientSession_RequestResetsRemoteWhenDisconnected(t *testing.T) {
	ctx := context.Background()
	st, tr := newClientStack(zap.NewNop())
	ses := st.NewClientSession(mathService)
	ses.setRemoteID(droneAddr)

	_, err := ses.Request(ctx, "add")
	require.NoError(t, err)
	assert.Equal(t, mathAddress, tr.outbox()[0].Recipient)
}

func TestClientSession_StatusHandling(t *testing.T) {
	tests := []struct {
		name     string
		code     protocol.StatusCode
		wantErr  any
		wantStat State
	}{
		{name: "not found", code: protocol.StatusNotFound, wantErr: &ServiceError{}, wantStat: Disconnected},
		{name: "server error", code: protocol.StatusInternalServerError, wantErr: &ServiceError{}, wantStat: Connected},
		{name: "bad request", code: protocol.StatusBadRequest, wantErr: &ServiceError{}, wantStat: Connected},
		{name: "timeout", code: protocol.StatusTimeout, wantStat: Disconnected},
		{name: "unknown", code: protocol.StatusAccepted, wantErr: &ProtocolError{}, wantStat: Connected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st, tr := newClientStack(zap.NewNop())
			ses := st.NewClientSession(mathService)
			req, err := ses.Request(ctx, "div", 1, 0)
			require.NoError(t, err)
			ses.state = Connected

			tr.deliver(t, droneAddr, ses.Thread(), protocol.NewConnectStatus(0, tt.code, fmt.Sprintf("status %d", tt.code)))
			_, err = req.Recv(ctx, 0)

			switch want := tt.wantErr.(type) {
			case *ServiceError:
				require.True(t, errors.As(err, &want))
				assert.Equal(t, tt.code, want.Code)
				assert.Equal(t, fmt.Sprintf("status %d", tt.code), want.Status)
			case *ProtocolError:
				require.True(t, errors.As(err, &want))
			default:
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantStat, ses.State())
		})
	}
}

func TestClientSession_MethodException(t *testing.T) {
	ctx := context.Background()
	st, tr := newClientStack(zap.NewNop())
	ses := st.NewClientSession(mathService)
	req, err := ses.Request(ctx, "div", 1, 0)
	require.NoError(t, err)

	tr.deliver(t, droneAddr, ses.Thread(), protocol.NewStatus(0, &protocol.MethodException{
		Status:     "division by zero",
		StatusCode: protocol.StatusInternalServerError,
	}))
	_, err = req.Recv(ctx, time.Second)

	var serr *ServiceError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "server error 500: division by zero", serr.Error())
	assert.False(t, IsRetryable(err))
}
