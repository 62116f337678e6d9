package session

import (
	"context"
	"testing"
	"time"

	"github.com/amoylab/osrf/internal/protocol"
	"github.com/amoylab/osrf/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMultiSession_ReturnsEveryResponse(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	bus := transport.NewBus(zap.NewNop(), 64)
	serve(t, bus, cfg, mathService, answerHandler)
	serve(t, bus, cfg, "opensrf.settings", HandlerFunc(func(ctx context.Context, _ *ServerSession, req *ServerRequest) {
		time.Sleep(30 * time.Millisecond)
		_ = req.RespondComplete(ctx, "settings")
	}))
	client := busClientStack(t, bus, cfg, "opensrf@localhost/client_multi")

	multi := client.NewMultiSession()
	multi.SetBlockTime(50 * time.Millisecond)

	want := map[int]any{}
	for i, arg := range []string{"zero", "one", "two"} {
		id, err := multi.Request(ctx, mathService, "echo", arg)
		require.NoError(t, err)
		assert.Equal(t, i, id)
		want[id] = arg
	}
	id, err := multi.Request(ctx, "opensrf.settings", "get")
	require.NoError(t, err)
	want[id] = "settings"
	assert.Equal(t, 4, multi.Len())
	assert.False(t, multi.Complete())

	got := map[int]any{}
	for len(got) < len(want) {
		res, err := multi.Recv(ctx, 5*time.Second)
		require.NoError(t, err)
		require.NotNil(t, res)
		_, dup := got[res.ID]
		require.False(t, dup, "slot %d returned twice", res.ID)
		got[res.ID] = res.Content
	}
	assert.Equal(t, want, got)
	assert.True(t, multi.Complete())
	assert.Equal(t, 0, multi.Len())
	assert.Equal(t, 0, client.Registry().Len())

	res, err := multi.Recv(ctx, time.Second)
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestMultiSession_IDsAreNotReused(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	bus := transport.NewBus(zap.NewNop(), 64)
	serve(t, bus, cfg, mathService, answerHandler)
	client := busClientStack(t, bus, cfg, "opensrf@localhost/client_ids")

	multi := client.NewMultiSession()
	multi.SetBlockTime(50 * time.Millisecond)

	first, err := multi.Request(ctx, mathService, "echo", "a")
	require.NoError(t, err)
	res, err := multi.Recv(ctx, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, first, res.ID)
	assert.Equal(t, 0, multi.Len())

	second, err := multi.Request(ctx, mathService, "echo", "b")
	require.NoError(t, err)
	assert.Equal(t, first+1, second)
	assert.False(t, multi.Complete())
	multi.Close()
	assert.Equal(t, 0, multi.Len())
}

func TestMultiSession_Timeout(t *testing.T) {
	ctx := context.Background()
	st, _ := newClientStack(zap.NewNop())
	multi := st.NewMultiSession()
	multi.SetBlockTime(20 * time.Millisecond)

	_, err := multi.Request(ctx, mathService, "slow")
	require.NoError(t, err)

	start := time.Now()
	res, err := multi.Recv(ctx, 60*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Equal(t, 1, multi.Len())
}

func TestMultiSession_DropsEmptyCompletion(t *testing.T) {
	ctx := context.Background()
	st, tr := newClientStack(zap.NewNop())
	multi := st.NewMultiSession()
	multi.SetBlockTime(20 * time.Millisecond)

	_, err := multi.Request(ctx, mathService, "noop")
	require.NoError(t, err)
	second, err := multi.Request(ctx, mathService, "echo")
	require.NoError(t, err)

	out := tr.outbox()
	require.Len(t, out, 2)
	tr.deliver(t, droneAddr, out[0].Thread, protocol.NewConnectStatus(0, protocol.StatusComplete, protocol.TextComplete))
	tr.deliver(t, droneAddr, out[1].Thread,
		protocol.NewResult(0, "late"),
		protocol.NewConnectStatus(0, protocol.StatusComplete, protocol.TextComplete))

	res, err := multi.Recv(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, second, res.ID)
	assert.Equal(t, "late", res.Content)
	assert.True(t, multi.Complete())
}
