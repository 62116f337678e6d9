package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amoylab/osrf/internal/common/cnst"
	"github.com/amoylab/osrf/internal/common/config"
	"github.com/amoylab/osrf/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// pollInterval paces non-blocking polls for waits shorter than the one
// second granularity of BLPOP.
const pollInterval = 50 * time.Millisecond

// NewRedisClient creates a redis client for single, sentinel or cluster deployments
func NewRedisClient(cfg config.RedisConfig) (redis.UniversalClient, error) {
	opts := &redis.UniversalOptions{
		Addrs:    utils.SplitByMultipleDelimiters(cfg.Addr, ";", ","),
		Username: cfg.Username,
		Password: cfg.Password,
	}
	if cfg.ClusterType == cnst.RedisClusterTypeSentinel {
		opts.MasterName = cfg.MasterName
	}
	if cfg.ClusterType != cnst.RedisClusterTypeCluster {
		// can not set db in cluster mode
		opts.DB = cfg.DB
	}
	client := redis.NewUniversalClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisTransport is an endpoint whose inbox is a redis list. Every address
// has a presence set holding the ids of its attached endpoints, used to
// detect undeliverable envelopes.
type RedisTransport struct {
	logger  *zap.Logger
	client  redis.UniversalClient
	prefix  string
	address string
	id      string
	errs    failures

	mu        sync.Mutex
	connected bool
}

var _ Transport = (*RedisTransport)(nil)

// NewRedisTransport creates a detached endpoint for address
func NewRedisTransport(logger *zap.Logger, client redis.UniversalClient, prefix, address string) *RedisTransport {
	if prefix == "" {
		prefix = cnst.AppName
	}
	return &RedisTransport{
		logger:  logger.Named("transport.redis"),
		client:  client,
		prefix:  prefix,
		address: address,
		id:      uuid.New().String(),
		errs:    newFailures(),
	}
}

func (t *RedisTransport) queueKey(address string) string {
	return t.prefix + ":queue:" + address
}

func (t *RedisTransport) presenceKey(address string) string {
	return t.prefix + ":presence:" + address
}

// Connect implements Transport.Connect
func (t *RedisTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}
	if err := t.client.SAdd(ctx, t.presenceKey(t.address), t.id).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrNoConnection, err)
	}
	t.connected = true
	return nil
}

// Disconnect implements Transport.Disconnect
func (t *RedisTransport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}
	t.connected = false
	if err := t.client.SRem(ctx, t.presenceKey(t.address), t.id).Err(); err != nil {
		t.logger.Warn("failed to remove presence",
			zap.String("address", t.address),
			zap.Error(err))
		return err
	}
	return nil
}

// Connected implements Transport.Connected
func (t *RedisTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Address implements Transport.Address
func (t *RedisTransport) Address() string {
	return t.address
}

// Send implements Transport.Send
func (t *RedisTransport) Send(ctx context.Context, env *Envelope) error {
	if !t.Connected() {
		return ErrNoConnection
	}
	if env.Sender == "" {
		env.Sender = t.address
	}

	listeners, err := t.client.SCard(ctx, t.presenceKey(env.Recipient)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoConnection, err)
	}
	if listeners == 0 {
		t.errs.report(&NoRecipientError{Recipient: env.Recipient})
		return nil
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := t.client.RPush(ctx, t.queueKey(env.Recipient), data).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrNoConnection, err)
	}
	return nil
}

// Receive implements Transport.Receive
func (t *RedisTransport) Receive(ctx context.Context, timeout time.Duration) (*Envelope, error) {
	if !t.Connected() {
		return nil, ErrNoConnection
	}
	if err := t.errs.poll(); err != nil {
		return nil, err
	}

	key := t.queueKey(t.address)
	if timeout == 0 {
		return t.pop(ctx, key)
	}
	if timeout < 0 {
		return t.blockingPop(ctx, key, 0)
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining >= time.Second {
			env, err := t.blockingPop(ctx, key, remaining.Truncate(time.Second))
			if env != nil || err != nil {
				return env, err
			}
			continue
		}

		env, err := t.pop(ctx, key)
		if env != nil || err != nil || remaining <= 0 {
			return env, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(min(remaining, pollInterval)):
		}
	}
}

func (t *RedisTransport) pop(ctx context.Context, key string) (*Envelope, error) {
	data, err := t.client.LPop(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, t.receiveError(ctx, err)
	}
	return t.decode(data)
}

func (t *RedisTransport) blockingPop(ctx context.Context, key string, timeout time.Duration) (*Envelope, error) {
	res, err := t.client.BLPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, t.receiveError(ctx, err)
	}
	if len(res) != 2 {
		return nil, nil
	}
	return t.decode([]byte(res[1]))
}

func (t *RedisTransport) receiveError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", ErrNoConnection, err)
}

func (t *RedisTransport) decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.logger.Error("failed to unmarshal envelope, dropping it",
			zap.String("address", t.address),
			zap.Error(err))
		return nil, nil
	}
	return &env, nil
}
