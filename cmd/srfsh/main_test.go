package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/amoylab/osrf/internal/app"
	"github.com/amoylab/osrf/internal/common/config"
	"github.com/amoylab/osrf/internal/session"
	"github.com/amoylab/osrf/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// hostDBMath serves opensrf.dbmath on bus and returns a client stack
func hostDBMath(t *testing.T) *session.Stack {
	cfg := &config.OSRFConfig{}
	config.SetDefaults(cfg)
	cfg.Client.RequestTimeout = 2 * time.Second
	bus := transport.NewBus(zap.NewNop(), 64)

	a := app.NewDBMath(zap.NewNop())
	ep := bus.Endpoint(cfg.ServiceAddress(a.Service()))
	require.NoError(t, ep.Connect(context.Background()))
	srv := session.NewStack(zap.NewNop(), ep, cfg, session.WithHandler(a.Service(), a))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ctx.Err() == nil {
			_, _ = srv.Receive(ctx, 20*time.Millisecond)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	client := bus.Endpoint("opensrf@localhost/srfsh_test")
	require.NoError(t, client.Connect(context.Background()))
	return session.NewStack(zap.NewNop(), client, cfg)
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"1", `"two"`, `{"three":3}`, "[4]"})
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, "two", map[string]any{"three": 3.0}, []any{4.0}}, params)

	_, err = parseParams([]string{"{oops"})
	assert.ErrorContains(t, err, "invalid JSON param")
}

func TestRequest(t *testing.T) {
	st := hostDBMath(t)
	var out bytes.Buffer

	require.NoError(t, request(context.Background(), st, &out, app.ServiceDBMath, "add", []any{2.0, 2.0}))
	assert.Contains(t, out.String(), "Received Data: 4")
	assert.Contains(t, out.String(), "Request Completed Successfully")
	assert.Contains(t, out.String(), "Responses: 1")
}

func TestRequest_MethodNotFound(t *testing.T) {
	st := hostDBMath(t)
	var out bytes.Buffer

	err := request(context.Background(), st, &out, app.ServiceDBMath, "pow", nil)
	var svcErr *session.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.EqualValues(t, 404, svcErr.Code)
}

func TestIntrospect(t *testing.T) {
	st := hostDBMath(t)

	var out bytes.Buffer
	require.NoError(t, introspect(context.Background(), st, &out, app.ServiceDBMath, "opensrf.system.echo"))
	assert.Equal(t, 2, strings.Count(out.String(), "Received Data"))
	assert.Contains(t, out.String(), `"api_name": "opensrf.system.echo.atomic"`)

	out.Reset()
	require.NoError(t, introspect(context.Background(), st, &out, app.ServiceDBMath))
	assert.Contains(t, out.String(), `"api_name": "div"`)
}
