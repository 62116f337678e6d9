package transport

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/amoylab/osrf/internal/common/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisPair(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisTransport_SendReceive(t *testing.T) {
	ctx := context.Background()
	_, client := newRedisPair(t)

	a := NewRedisTransport(zap.NewNop(), client, "test", "a")
	b := NewRedisTransport(zap.NewNop(), client, "test", "b")
	require.NoError(t, a.Connect(ctx))
	require.NoError(t, b.Connect(ctx))

	require.NoError(t, a.Send(ctx, &Envelope{Recipient: "b", Thread: "t1", Body: "hello", Xid: "x1"}))

	env, err := b.Receive(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, "a", env.Sender)
	assert.Equal(t, "t1", env.Thread)
	assert.Equal(t, "hello", env.Body)
	assert.Equal(t, "x1", env.Xid)

	env, err = b.Receive(ctx, 0)
	assert.NoError(t, err)
	assert.Nil(t, env)
}

func TestRedisTransport_SubSecondTimeout(t *testing.T) {
	ctx := context.Background()
	_, client := newRedisPair(t)

	a := NewRedisTransport(zap.NewNop(), client, "test", "a")
	require.NoError(t, a.Connect(ctx))

	start := time.Now()
	env, err := a.Receive(ctx, 120*time.Millisecond)
	elapsed := time.Since(start)
	assert.NoError(t, err)
	assert.Nil(t, env)
	assert.GreaterOrEqual(t, elapsed, 120*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestRedisTransport_BlockingReceive(t *testing.T) {
	ctx := context.Background()
	_, client := newRedisPair(t)

	a := NewRedisTransport(zap.NewNop(), client, "test", "a")
	b := NewRedisTransport(zap.NewNop(), client, "test", "b")
	require.NoError(t, a.Connect(ctx))
	require.NoError(t, b.Connect(ctx))

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = a.Send(ctx, &Envelope{Recipient: "b", Body: "late"})
	}()

	env, err := b.Receive(ctx, 3*time.Second)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, "late", env.Body)
}

func TestRedisTransport_NoRecipient(t *testing.T) {
	ctx := context.Background()
	_, client := newRedisPair(t)

	a := NewRedisTransport(zap.NewNop(), client, "test", "a")
	b := NewRedisTransport(zap.NewNop(), client, "test", "b")
	require.NoError(t, a.Connect(ctx))
	require.NoError(t, b.Connect(ctx))
	require.NoError(t, b.Disconnect(ctx))

	require.NoError(t, a.Send(ctx, &Envelope{Recipient: "b"}))
	_, err := a.Receive(ctx, 0)
	var nrErr *NoRecipientError
	require.ErrorAs(t, err, &nrErr)
	assert.Equal(t, "b", nrErr.Recipient)
}

func TestRedisTransport_LostConnection(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedisPair(t)

	a := NewRedisTransport(zap.NewNop(), client, "test", "a")
	require.NoError(t, a.Connect(ctx))
	mr.Close()

	_, err := a.Receive(ctx, 0)
	assert.ErrorIs(t, err, ErrNoConnection)
	assert.ErrorIs(t, a.Send(ctx, &Envelope{Recipient: "b"}), ErrNoConnection)
}

func TestFactory(t *testing.T) {
	cfg := &config.OSRFConfig{}
	config.SetDefaults(cfg)

	f, err := NewFactory(zap.NewNop(), cfg)
	require.NoError(t, err)
	defer f.Close()

	ep := f.Open("")
	assert.Regexp(t, `^opensrf@localhost/osrf_.+:\d+_\w{8}$`, ep.Address())
	assert.NotEqual(t, ep.Address(), f.Open("").Address())
	assert.Equal(t, "router@localhost/opensrf.math", f.Listen("opensrf.math").Address())

	mr := miniredis.RunT(t)
	cfg.Transport.Type = "redis"
	cfg.Transport.Redis.Addr = mr.Addr()
	rf, err := NewFactory(zap.NewNop(), cfg)
	require.NoError(t, err)
	defer rf.Close()
	_, ok := rf.Open("cli").(*RedisTransport)
	assert.True(t, ok)

	cfg.Transport.Type = "xmpp"
	_, err = NewFactory(zap.NewNop(), cfg)
	assert.Error(t, err)
}
