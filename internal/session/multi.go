package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultBlockTime bounds the blocking poll a MultiSession sweep spends on
// its first slot
const DefaultBlockTime = time.Second

// Response is one result returned by MultiSession.Recv
type Response struct {
	ID      int
	Content any
}

type slot struct {
	id      int
	session *ClientSession
	req     *ClientRequest
}

// MultiSession waits on many requests, possibly to different services,
// from one goroutine. It suits long running, low frequency calls: a sweep
// may wait one block time before noticing a response.
type MultiSession struct {
	stack     *Stack
	slots     []*slot
	nextID    int
	complete  bool
	blockTime time.Duration
	logger    *zap.Logger
}

// NewMultiSession creates an empty multiplexer on the stack
func (st *Stack) NewMultiSession() *MultiSession {
	return &MultiSession{
		stack:     st,
		blockTime: DefaultBlockTime,
		logger:    st.logger.Named("multi"),
	}
}

// SetBlockTime changes the bounded poll spent on the first slot of a sweep
func (m *MultiSession) SetBlockTime(d time.Duration) {
	if d > 0 {
		m.blockTime = d
	}
}

// Request issues method on a new session to service and returns its slot
// id. Slot ids follow issuance order and are never reused.
func (m *MultiSession) Request(ctx context.Context, service, method string, args ...any) (int, error) {
	ses := m.stack.NewClientSession(service)
	req, err := ses.RequestWithParams(ctx, method, args)
	if err != nil {
		ses.Cleanup()
		return -1, err
	}
	sl := &slot{id: m.nextID, session: ses, req: req}
	m.nextID++
	m.slots = append(m.slots, sl)
	m.complete = false
	return sl.id, nil
}

// Recv returns the next response of any pending request. Each fruitless
// sweep over the slots charges one block time against timeout; a negative
// timeout never runs out. It returns nil, nil when the budget is spent or
// nothing is pending.
func (m *MultiSession) Recv(ctx context.Context, timeout time.Duration) (*Response, error) {
	var spent time.Duration
	for {
		if len(m.slots) == 0 {
			m.complete = true
			return nil, nil
		}

		for i := 0; i < len(m.slots); i++ {
			sl := m.slots[i]
			res, err := sl.req.Recv(ctx, 0)
			if err != nil {
				return nil, err
			}
			if res == nil && i == 0 {
				if res, err = sl.req.Recv(ctx, m.blockTime); err != nil {
					return nil, err
				}
			}
			if res != nil {
				m.settle(sl)
				return &Response{ID: sl.id, Content: res.Content}, nil
			}
			if m.settle(sl) {
				i--
			}
		}

		spent += m.blockTime
		if timeout >= 0 && spent >= timeout {
			return nil, nil
		}
	}
}

// settle drops sl once its request is complete and fully read
func (m *MultiSession) settle(sl *slot) bool {
	if !sl.req.Complete() || sl.req.Pending() > 0 {
		return false
	}
	for i, s := range m.slots {
		if s == sl {
			m.slots = append(m.slots[:i], m.slots[i+1:]...)
			break
		}
	}
	sl.req.Cleanup()
	sl.session.Cleanup()
	m.logger.Debug("request settled", zap.Int("slot", sl.id))

	if len(m.slots) == 0 {
		m.complete = true
	}
	return true
}

// Complete reports whether every issued request finished and was read
func (m *MultiSession) Complete() bool {
	return m.complete
}

// Len returns the number of pending slots
func (m *MultiSession) Len() int {
	return len(m.slots)
}

// Close abandons every pending request
func (m *MultiSession) Close() {
	for _, sl := range m.slots {
		sl.req.Cleanup()
		sl.session.Cleanup()
	}
	m.slots = nil
}
