package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/amoylab/osrf/internal/common/cnst"
	"github.com/amoylab/osrf/internal/i18n"
	"github.com/amoylab/osrf/internal/protocol"
	"github.com/amoylab/osrf/internal/session"
	"github.com/amoylab/osrf/internal/transport"
	"github.com/amoylab/osrf/pkg/trace"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var errRequestTimeout = errors.New("request timed out")

// handleGateway runs one request and answers with every response it
// produced: {"payload": [...], "status": 200}. Failures keep HTTP 200 and
// report the protocol status in the body.
func (g *Gateway) handleGateway(c *gin.Context) {
	service := formValue(c, "service")
	method := formValue(c, "method")
	if service == "" || method == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": http.StatusBadRequest, "debug": "service and method are required"})
		return
	}

	raw := c.PostFormArray("param")
	if len(raw) == 0 {
		raw = c.QueryArray("param")
	}
	params := make([]any, 0, len(raw))
	for _, p := range raw {
		if !gjson.Valid(p) {
			c.JSON(http.StatusBadRequest, gin.H{"status": http.StatusBadRequest, "debug": "invalid JSON param: " + p})
			return
		}
		params = append(params, gjson.Parse(p).Value())
	}

	ctx := c.Request.Context()
	span := trace.Tracer(cnst.TraceGateway).Start(ctx, cnst.SpanGatewayRequest).WithAttrs(
		attribute.String(cnst.AttrService, service),
		attribute.String(cnst.AttrMethod, method),
		attribute.String(cnst.AttrClientAddr, c.ClientIP()),
	)
	defer span.End()

	st, err := g.acquire(ctx)
	if err != nil {
		span.Fail(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": http.StatusServiceUnavailable, "debug": err.Error()})
		return
	}
	defer g.release(ctx, st)

	payload, err := g.call(ctx, st, service, method, params, i18n.LocaleFromRequest(c.Request))
	status, debug := statusOf(err)
	span.Status(status, debug)
	if err != nil {
		g.logger.Info("gateway request failed",
			zap.String("service", service),
			zap.String("method", method),
			zap.Int("status", status),
			zap.Error(err))
	}

	body := gin.H{"payload": payload, "status": status}
	if debug != "" {
		body["debug"] = debug
	}
	c.JSON(http.StatusOK, body)
}

// call collects every response of one request until it completes
func (g *Gateway) call(ctx context.Context, st *session.Stack, service, method string, params []any, locale string) ([]any, error) {
	ses := st.NewClientSession(service)
	defer ses.Cleanup()
	ses.SetLocale(locale)

	req, err := ses.RequestWithParams(ctx, method, params)
	if err != nil {
		return []any{}, err
	}
	defer req.Cleanup()

	payload := []any{}
	for {
		res, err := req.Recv(ctx, g.cfg.Gateway.Timeout)
		if err != nil {
			return payload, err
		}
		if res == nil {
			if req.Complete() {
				return payload, nil
			}
			return payload, errRequestTimeout
		}
		payload = append(payload, res.Content)
	}
}

// statusOf maps a request failure to the status reported to HTTP callers
func statusOf(err error) (int, string) {
	if err == nil {
		return int(protocol.StatusOK), ""
	}
	var svcErr *session.ServiceError
	var nrErr *transport.NoRecipientError
	switch {
	case errors.As(err, &svcErr):
		return int(svcErr.Code), svcErr.Status
	case errors.As(err, &nrErr):
		return int(protocol.StatusNotFound), err.Error()
	case errors.Is(err, errRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		return int(protocol.StatusTimeout), err.Error()
	default:
		return int(protocol.StatusInternalServerError), err.Error()
	}
}

// formValue prefers the POST body over the query string
func formValue(c *gin.Context, key string) string {
	if v, ok := c.GetPostForm(key); ok {
		return v
	}
	return c.Query(key)
}
