package session

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/amoylab/osrf/internal/protocol"
	"github.com/amoylab/osrf/internal/transport"

	"github.com/google/uuid"
	"github.com/ifuryst/lol"
)

// ServiceUnavailableError is returned when Connect runs out of time before
// the service acknowledged the connection
type ServiceUnavailableError struct {
	Service string
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("unable to connect to %s", e.Service)
}

// ServiceError carries an error status sent back by the service
type ServiceError struct {
	Code   protocol.StatusCode
	Status string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("server error %d: %s", int(e.Code), e.Status)
}

// ProtocolError reports a message the session state machine cannot handle
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// IsRetryable reports whether the caller may retry the failed operation.
// Lost bus connections and protocol violations are not retryable.
func IsRetryable(err error) bool {
	var unavailable *ServiceUnavailableError
	var noRecipient *transport.NoRecipientError
	return errors.As(err, &unavailable) || errors.As(err, &noRecipient)
}

// NewThreadID returns a new globally unique conversation id
func NewThreadID() string {
	return fmt.Sprintf("%d%d%s", os.Getpid(), time.Now().UnixNano(), uuid.New().String()[:8])
}

// NewXid returns a new transaction id used to correlate log lines across processes
func NewXid() string {
	return fmt.Sprintf("%d%s", time.Now().UnixMilli(), lol.RandomString(6))
}
