package journal

import "context"

// Noop is the journal used when none is configured
type Noop struct{}

var _ Journal = Noop{}

func (Noop) Close() error                                        { return nil }
func (Noop) SaveCall(context.Context, *Call) error               { return nil }
func (Noop) GetCalls(context.Context, string) ([]*Call, error)   { return nil, nil }
func (Noop) CreateSession(context.Context, string, string) error { return nil }
func (Noop) SessionExists(context.Context, string) (bool, error) { return false, nil }
func (Noop) GetSessions(context.Context) ([]*Session, error)     { return nil, nil }
func (Noop) GetCallsWithPagination(context.Context, string, int, int) ([]*Call, error) {
	return nil, nil
}
