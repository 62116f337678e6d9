package transport

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/amoylab/osrf/internal/common/config"

	"github.com/ifuryst/lol"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory opens endpoints on the configured bus
type Factory struct {
	logger *zap.Logger
	cfg    *config.OSRFConfig
	bus    *Bus
	client redis.UniversalClient
}

// NewFactory creates the bus connection described by cfg
func NewFactory(logger *zap.Logger, cfg *config.OSRFConfig) (*Factory, error) {
	logger.Info("Initializing transport", zap.String("type", cfg.Transport.Type))
	f := &Factory{logger: logger, cfg: cfg}
	switch Type(cfg.Transport.Type) {
	case TypeMemory:
		f.bus = NewBus(logger, cfg.Transport.Buffer)
	case TypeRedis:
		client, err := NewRedisClient(cfg.Transport.Redis)
		if err != nil {
			return nil, err
		}
		f.client = client
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", cfg.Transport.Type)
	}
	return f, nil
}

// NewMemoryFactory creates a factory over an existing bus
func NewMemoryFactory(logger *zap.Logger, cfg *config.OSRFConfig, bus *Bus) *Factory {
	return &Factory{logger: logger, cfg: cfg, bus: bus}
}

// Config returns the configuration the factory was created with
func (f *Factory) Config() *config.OSRFConfig {
	return f.cfg
}

// Open creates a detached endpoint with a unique address of the form
// <user>@<domain>/<resource>_<host>:<pid>_<random>
func (f *Factory) Open(resource string) Transport {
	if resource == "" {
		resource = f.cfg.Transport.Resource
	}
	host, _ := os.Hostname()
	address := fmt.Sprintf("%s@%s/%s_%s:%d_%s",
		f.cfg.Username, f.cfg.Domain, resource, host, os.Getpid(), lol.RandomString(8))
	return f.endpoint(address)
}

// Listen creates a detached endpoint on the canonical address of service.
// Endpoints listening on the same service share its envelopes.
func (f *Factory) Listen(service string) Transport {
	return f.endpoint(f.cfg.ServiceAddress(service))
}

func (f *Factory) endpoint(address string) Transport {
	if f.bus != nil {
		return f.bus.Endpoint(address)
	}
	return NewRedisTransport(f.logger, f.client, f.cfg.Transport.Redis.Prefix, address)
}

// Close releases the bus connection
func (f *Factory) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// FlushInbound discards every envelope and delivery failure already waiting
// for t and returns how many envelopes were dropped
func FlushInbound(ctx context.Context, t Transport) (int, error) {
	n := 0
	for {
		env, err := t.Receive(ctx, 0)
		var nrErr *NoRecipientError
		if errors.As(err, &nrErr) {
			continue
		}
		if err != nil {
			return n, err
		}
		if env == nil {
			return n, nil
		}
		n++
	}
}
