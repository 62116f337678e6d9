package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/amoylab/osrf/internal/common/cnst"
	"go.uber.org/zap"
)

// Bus is an in-process message bus. Several endpoints may listen on one
// address; envelopes for it are handed out round robin.
type Bus struct {
	logger    *zap.Logger
	buffer    int
	mu        sync.RWMutex
	endpoints map[string][]*MemoryTransport
	next      map[string]int
}

// NewBus creates an in-process bus whose endpoints buffer up to buffer envelopes
func NewBus(logger *zap.Logger, buffer int) *Bus {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Bus{
		logger:    logger.Named("transport.bus"),
		buffer:    buffer,
		endpoints: make(map[string][]*MemoryTransport),
		next:      make(map[string]int),
	}
}

// Endpoint creates a detached endpoint for address
func (b *Bus) Endpoint(address string) *MemoryTransport {
	return &MemoryTransport{
		bus:     b,
		address: address,
		inbox:   make(chan *Envelope, b.buffer),
		errs:    newFailures(),
	}
}

// Listeners returns the number of attached endpoints for address
func (b *Bus) Listeners(address string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.endpoints[address])
}

func (b *Bus) attach(t *MemoryTransport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endpoints[t.address] = append(b.endpoints[t.address], t)
}

func (b *Bus) detach(t *MemoryTransport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.endpoints[t.address]
	for i, ep := range list {
		if ep == t {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.endpoints, t.address)
		delete(b.next, t.address)
		return
	}
	b.endpoints[t.address] = list
}

func (b *Bus) deliver(env *Envelope) error {
	b.mu.Lock()
	list := b.endpoints[env.Recipient]
	if len(list) == 0 {
		b.mu.Unlock()
		return &NoRecipientError{Recipient: env.Recipient}
	}
	idx := b.next[env.Recipient] % len(list)
	b.next[env.Recipient] = idx + 1
	target := list[idx]
	b.mu.Unlock()

	select {
	case target.inbox <- env:
		return nil
	default:
		b.logger.Warn("endpoint inbox is full, dropping envelope",
			zap.String("recipient", env.Recipient),
			zap.String("thread", env.Thread))
		return cnst.ErrQueueFull
	}
}

// MemoryTransport is an endpoint on a Bus
type MemoryTransport struct {
	bus     *Bus
	address string
	inbox   chan *Envelope
	errs    failures

	mu     sync.Mutex
	closed chan struct{}
}

var _ Transport = (*MemoryTransport)(nil)

// Connect implements Transport.Connect
func (t *MemoryTransport) Connect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed != nil {
		return nil
	}
	t.closed = make(chan struct{})
	t.bus.attach(t)
	return nil
}

// Disconnect implements Transport.Disconnect
func (t *MemoryTransport) Disconnect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed == nil {
		return nil
	}
	t.bus.detach(t)
	close(t.closed)
	t.closed = nil
	return nil
}

// Connected implements Transport.Connected
func (t *MemoryTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed != nil
}

func (t *MemoryTransport) done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Address implements Transport.Address
func (t *MemoryTransport) Address() string {
	return t.address
}

// Send implements Transport.Send
func (t *MemoryTransport) Send(_ context.Context, env *Envelope) error {
	if !t.Connected() {
		return ErrNoConnection
	}
	if env.Sender == "" {
		env.Sender = t.address
	}
	err := t.bus.deliver(env)
	var nrErr *NoRecipientError
	if errors.As(err, &nrErr) {
		t.errs.report(nrErr)
		return nil
	}
	return err
}

// Receive implements Transport.Receive
func (t *MemoryTransport) Receive(ctx context.Context, timeout time.Duration) (*Envelope, error) {
	closed := t.done()
	if closed == nil {
		return nil, ErrNoConnection
	}
	if err := t.errs.poll(); err != nil {
		return nil, err
	}

	if timeout == 0 {
		select {
		case env := <-t.inbox:
			return env, nil
		default:
			return nil, nil
		}
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case env := <-t.inbox:
		return env, nil
	case err := <-t.errs:
		return nil, err
	case <-closed:
		return nil, ErrNoConnection
	case <-expired:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
