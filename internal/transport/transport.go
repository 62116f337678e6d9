package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Envelope is one addressed message on the bus. Body holds the encoded
// message batch.
type Envelope struct {
	Sender        string `json:"sender"`
	Recipient     string `json:"recipient"`
	Thread        string `json:"thread"`
	Body          string `json:"body"`
	Xid           string `json:"xid,omitempty"`
	RouterCommand string `json:"router_command,omitempty"`
	RouterClass   string `json:"router_class,omitempty"`
}

// Transport is one endpoint on the message bus. An endpoint is owned by a
// single execution context.
type Transport interface {
	// Connect attaches the endpoint to the bus
	Connect(ctx context.Context) error
	// Disconnect detaches the endpoint; pending Receive calls return ErrNoConnection
	Disconnect(ctx context.Context) error
	// Connected reports whether the endpoint is attached
	Connected() bool
	// Send delivers env to its recipient. A missing recipient is reported by
	// the next Receive as a *NoRecipientError.
	Send(ctx context.Context, env *Envelope) error
	// Receive waits up to timeout for the next envelope. A negative timeout
	// blocks until one arrives, zero polls. It returns nil, nil on timeout.
	Receive(ctx context.Context, timeout time.Duration) (*Envelope, error)
	// Address is the bus address envelopes for this endpoint are sent to
	Address() string
}

// ErrNoConnection is returned when the endpoint lost, or never had, its bus connection.
var ErrNoConnection = errors.New("no connection to the message bus")

// NoRecipientError reports that an earlier envelope could not be delivered.
type NoRecipientError struct {
	Recipient string
}

func (e *NoRecipientError) Error() string {
	return fmt.Sprintf("no such recipient: %s", e.Recipient)
}

// Type represents the type of transport
type Type string

const (
	// TypeMemory is the in-process bus
	TypeMemory Type = "memory"
	// TypeRedis stores envelopes in redis lists
	TypeRedis Type = "redis"
)

// errBacklog is the number of delivery failures an endpoint keeps until its next Receive
const errBacklog = 16

type failures chan error

func newFailures() failures {
	return make(failures, errBacklog)
}

// report queues err without blocking; the oldest failure wins when full.
func (f failures) report(err error) {
	select {
	case f <- err:
	default:
	}
}

func (f failures) poll() error {
	select {
	case err := <-f:
		return err
	default:
		return nil
	}
}
