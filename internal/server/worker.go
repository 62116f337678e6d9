package server

import (
	"context"
	"errors"

	"github.com/amoylab/osrf/internal/session"
	"github.com/amoylab/osrf/internal/transport"

	"go.uber.org/zap"
)

// worker takes new conversations from the shared service address and
// serves each one to the end on its own drone endpoint, whose unique
// address stateful clients pin to
type worker struct {
	id     int
	server *Server
	logger *zap.Logger
}

func (w *worker) run(ctx context.Context) error {
	listener := w.server.factory.Listen(w.server.service)
	if err := listener.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = listener.Disconnect(context.Background()) }()

	for ctx.Err() == nil {
		if err := w.serveDrone(ctx, listener); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// serveDrone serves conversations on one drone stack until the request
// limit is reached, then recycles it
func (w *worker) serveDrone(ctx context.Context, listener transport.Transport) error {
	drone := w.server.factory.Open(w.server.service + "_drone")
	if err := drone.Connect(ctx); err != nil {
		return err
	}
	st := w.server.newStack(drone)
	defer func() { _ = st.Close(context.Background()) }()

	w.logger.Debug("drone ready", zap.String("address", drone.Address()))
	limit := w.server.cfg.Server.MaxRequests
	for served := 0; limit <= 0 || served < limit; {
		env, err := listener.Receive(ctx, listenPoll)
		if err != nil {
			var nrErr *transport.NoRecipientError
			if errors.As(err, &nrErr) {
				w.logger.Warn("reply was not delivered", zap.String("recipient", nrErr.Recipient))
				continue
			}
			return err
		}
		if env == nil {
			continue
		}

		conv, err := st.Push(ctx, env)
		if err != nil {
			w.logger.Error("failed to handle envelope", zap.String("thread", env.Thread), zap.Error(err))
		}
		if conv != nil {
			if ses, ok := conv.(*session.ServerSession); ok {
				w.keepalive(ctx, st, ses)
			}
			conv.Cleanup()
		}
		served++
	}
	w.logger.Info("drone reached its request limit, recycling", zap.Int("max_requests", limit))
	return nil
}

// keepalive serves a connected session until it disconnects or stays idle
// longer than the keepalive interval
func (w *worker) keepalive(ctx context.Context, st *session.Stack, ses *session.ServerSession) {
	timeout := w.server.cfg.Server.Keepalive
	for ses.State() == session.Connected {
		conv, err := st.Receive(ctx, timeout)
		if err != nil {
			var nrErr *transport.NoRecipientError
			if errors.As(err, &nrErr) {
				w.logger.Warn("client went away", zap.String("thread", ses.Thread()))
				return
			}
			w.logger.Error("keepalive receive failed", zap.String("thread", ses.Thread()), zap.Error(err))
			return
		}
		if conv == nil {
			w.logger.Debug("no request within keepalive, disconnecting", zap.String("thread", ses.Thread()))
			if err := ses.SendTimeout(ctx); err != nil {
				w.logger.Error("failed to send timeout status", zap.Error(err))
			}
			return
		}
	}
}
