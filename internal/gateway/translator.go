package gateway

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amoylab/osrf/internal/common/cnst"
	"github.com/amoylab/osrf/internal/protocol"
	"github.com/amoylab/osrf/internal/session"
	"github.com/amoylab/osrf/internal/transport"
	"github.com/amoylab/osrf/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	jsonContentType      = "text/plain"
	multipartContentType = `multipart/x-mixed-replace;boundary="%s"`
)

// route is the cached binding of a stateful thread to the drone serving it
type route struct {
	IP      string `json:"ip"`
	JID     string `json:"jid"`
	Service string `json:"service"`
}

// translation relays one HTTP batch of protocol messages to the bus and
// the responses back
type translation struct {
	gw        *Gateway
	c         *gin.Context
	logger    *zap.Logger
	body      string
	recipient string
	service   string
	thread    string
	xid       string
	remote    string
	timeout   time.Duration
	multipart bool
	delim     string

	connectOnly    bool
	disconnectOnly bool
	complete       bool
	started        bool
	messages       []string
}

// handleTranslator forwards the message batch in the request body on the
// caller's thread and writes back every message received until the
// exchange completes
func (g *Gateway) handleTranslator(c *gin.Context) {
	t := &translation{
		gw:        g,
		c:         c,
		recipient: c.GetHeader(cnst.HeaderTo),
		service:   c.GetHeader(cnst.HeaderService),
		thread:    utils.FirstNonEmpty(c.GetHeader(cnst.HeaderThread), session.NewThreadID()),
		xid:       utils.FirstNonEmpty(c.GetHeader(cnst.HeaderXid), session.NewXid()),
		remote:    c.ClientIP(),
		timeout:   g.cfg.Gateway.Timeout,
		multipart: strings.EqualFold(c.GetHeader(cnst.HeaderMultipart), "true"),
	}
	if v := c.GetHeader(cnst.HeaderTimeout); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			t.timeout = time.Duration(secs) * time.Second
		}
	}
	t.logger = g.logger.With(zap.String("thread", t.thread), zap.String("xid", t.xid))

	if err := t.readBody(); err != nil {
		t.logger.Warn("error parsing osrf message", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}
	if !t.setRecipient() {
		c.Status(http.StatusBadRequest)
		return
	}
	if err := t.parse(); err != nil {
		t.logger.Warn("error parsing osrf message", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}
	status := t.relay()
	if c.Writer.Written() {
		if status != http.StatusOK {
			t.logger.Warn("exchange failed after the response started", zap.Int("status", status))
		}
		return
	}
	c.Status(status)
}

func (t *translation) readBody() error {
	if t.c.ContentType() == gin.MIMEPOSTForm {
		t.body = t.c.PostForm(cnst.TranslatorForm)
	} else {
		data, err := io.ReadAll(t.c.Request.Body)
		if err != nil {
			return err
		}
		t.body = string(data)
	}
	if t.body == "" {
		return errors.New("empty message batch")
	}
	return nil
}

// setRecipient addresses the batch either to a service or, for a thread
// already bound to a drone by an earlier call from the same host, to that
// drone
func (t *translation) setRecipient() bool {
	if t.service != "" {
		if t.recipient != "" {
			t.logger.Warn("specifying both service and recipient is not allowed")
			return false
		}
		t.recipient = t.gw.cfg.ServiceAddress(t.service)
		return true
	}
	if t.recipient != "" {
		var rt route
		err := t.gw.cache.Get(t.c.Request.Context(), t.thread, &rt)
		if err == nil && rt.IP == t.remote && rt.JID == t.recipient {
			t.service = rt.Service
			return true
		}
	}
	t.logger.Warn("client attempted to send directly without a session",
		zap.String("remote_addr", t.remote),
		zap.String("recipient", t.recipient))
	return false
}

// parse validates the batch, notes CONNECT or DISCONNECT only batches and
// logs the requested methods
func (t *translation) parse() error {
	msgs, err := protocol.Decode([]byte(t.body))
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return errors.New("empty message batch")
	}
	if len(msgs) == 1 {
		switch msgs[0].Type {
		case protocol.TypeConnect:
			t.connectOnly = true
		case protocol.TypeDisconnect:
			t.disconnectOnly = true
		}
	}
	for _, msg := range msgs {
		if m, ok := msg.Payload.(*protocol.Method); ok && msg.Type == protocol.TypeRequest {
			t.logger.Info("activity",
				zap.String("remote_addr", t.remote),
				zap.String("service", t.service),
				zap.String("method", m.Method),
				zap.Any("params", m.Params))
		}
	}
	return nil
}

// relay sends the batch and streams or collects the answers. It returns
// the HTTP status of the exchange.
func (t *translation) relay() int {
	ctx := t.c.Request.Context()
	st, err := t.gw.acquire(ctx)
	if err != nil {
		return http.StatusServiceUnavailable
	}
	defer t.gw.release(ctx, st)
	tr := st.Transport()

	if n, err := transport.FlushInbound(ctx, tr); err != nil {
		t.logger.Error("failed to flush endpoint", zap.Error(err))
		return http.StatusInternalServerError
	} else if n > 0 {
		t.logger.Debug("dropped stale envelopes", zap.Int("count", n))
	}

	err = tr.Send(ctx, &transport.Envelope{
		Recipient: t.recipient,
		Thread:    t.thread,
		Body:      t.body,
		Xid:       t.xid,
	})
	if err != nil {
		t.logger.Error("failed to send message batch", zap.Error(err))
		return http.StatusInternalServerError
	}

	if t.disconnectOnly {
		t.logger.Debug("exiting early on DISCONNECT")
		if err := t.gw.cache.Delete(ctx, t.thread); err != nil {
			t.logger.Warn("failed to remove cached session", zap.Error(err))
		}
		return http.StatusOK
	}

	for !t.complete {
		env, err := tr.Receive(ctx, t.timeout)
		if err != nil {
			var nrErr *transport.NoRecipientError
			if errors.As(err, &nrErr) {
				return http.StatusNotFound
			}
			t.logger.Error("failed to receive response", zap.Error(err))
			return http.StatusInternalServerError
		}
		if env == nil {
			return http.StatusGatewayTimeout
		}
		if env.Thread != t.thread {
			t.logger.Debug("dropping envelope for another thread", zap.String("other", env.Thread))
			continue
		}
		if !t.checkStatus(env) {
			continue
		}
		if !t.started {
			t.start(env)
		}

		if t.multipart {
			t.writeChunk(env.Body)
			if t.connectOnly {
				break
			}
			continue
		}
		gjson.Parse(env.Body).ForEach(func(_, v gjson.Result) bool {
			t.messages = append(t.messages, v.Raw)
			return true
		})
		if t.connectOnly {
			break
		}
	}

	if !t.multipart {
		t.c.Data(http.StatusOK, jsonContentType, []byte("["+strings.Join(t.messages, ",")+"]"))
	}
	return http.StatusOK
}

// checkStatus inspects the last message of env. A TIMEOUT status unbinds
// the thread and is not relayed; any status other than CONTINUE completes
// the exchange.
func (t *translation) checkStatus(env *transport.Envelope) bool {
	msgs, err := protocol.Decode([]byte(env.Body))
	if err != nil || len(msgs) == 0 {
		t.logger.Warn("dropping undecodable response", zap.String("sender", env.Sender), zap.Error(err))
		return false
	}
	last := msgs[len(msgs)-1]
	if last.Type != protocol.TypeStatus {
		return true
	}
	status := last.StatusOf()
	if status == nil {
		return true
	}
	switch status.Code() {
	case protocol.StatusTimeout:
		t.logger.Debug("removing cached session and dropping TIMEOUT message")
		if err := t.gw.cache.Delete(t.c.Request.Context(), t.thread); err != nil {
			t.logger.Warn("failed to remove cached session", zap.Error(err))
		}
		return false
	case protocol.StatusContinue:
	default:
		t.complete = true
	}
	return true
}

// start writes the response headers and binds the thread to the
// responding drone
func (t *translation) start(env *transport.Envelope) {
	t.started = true
	t.c.Header(cnst.HeaderFrom, env.Sender)
	t.c.Header(cnst.HeaderThread, t.thread)
	if t.multipart {
		t.delim = strings.ReplaceAll(uuid.NewString(), "-", "")
		t.c.Header("Content-Type", fmt.Sprintf(multipartContentType, t.delim))
		t.c.Status(http.StatusOK)
		_, _ = fmt.Fprintf(t.c.Writer, "--%s\n", t.delim)
	}

	rt := route{IP: t.remote, JID: env.Sender, Service: t.service}
	if err := t.gw.cache.Put(t.c.Request.Context(), t.thread, rt, t.gw.cfg.Gateway.CacheTTL); err != nil {
		t.logger.Warn("failed to cache session", zap.Error(err))
		return
	}
	t.logger.Debug("caching session", zap.String("remote_addr", t.remote), zap.String("drone", env.Sender))
}

// writeChunk writes one multipart delimited part
func (t *translation) writeChunk(body string) {
	w := t.c.Writer
	_, _ = fmt.Fprintf(w, "Content-type: %s\n\n", jsonContentType)
	_, _ = fmt.Fprintf(w, "%s\n\n", body)
	if t.complete {
		_, _ = fmt.Fprintf(w, "--%s--\n", t.delim)
	} else {
		_, _ = fmt.Fprintf(w, "--%s\n", t.delim)
	}
	w.Flush()
}
