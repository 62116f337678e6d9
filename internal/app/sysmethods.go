package app

import (
	"context"
	"strings"
	"time"

	"github.com/amoylab/osrf/internal/session"
)

// System methods every application answers
const (
	MethodSystemTime      = "opensrf.system.time"
	MethodSystemEcho      = "opensrf.system.echo"
	MethodSystemMethod    = "opensrf.system.method"
	MethodSystemMethodAll = "opensrf.system.method.all"
)

func (a *Application) registerSysMethods() {
	for _, m := range []Method{
		{Name: MethodSystemTime, Handler: a.sysTime, Desc: "Returns the current epoch time"},
		{Name: MethodSystemEcho, Handler: a.sysEcho, Argc: 1, Stream: true, Desc: "Returns every param it is given"},
		{Name: MethodSystemMethod, Handler: a.sysIntrospect, Stream: true, Desc: "Lists the methods matching a name prefix"},
		{Name: MethodSystemMethodAll, Handler: a.sysIntrospect, Stream: true, Desc: "Lists every method"},
	} {
		_ = a.RegisterMethod(m)
	}
}

func (a *Application) sysTime(context.Context, *session.ServerRequest, []any) (any, error) {
	return float64(time.Now().UnixNano()) / float64(time.Second), nil
}

func (a *Application) sysEcho(ctx context.Context, req *session.ServerRequest, params []any) (any, error) {
	for _, p := range params {
		if err := req.Respond(ctx, p); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (a *Application) sysIntrospect(ctx context.Context, req *session.ServerRequest, params []any) (any, error) {
	var prefix string
	if len(params) > 0 {
		prefix, _ = params[0].(string)
	}
	for _, m := range a.Methods() {
		if !strings.HasPrefix(m.Name, prefix) {
			continue
		}
		err := req.Respond(ctx, map[string]any{
			"api_name": m.Name,
			"service":  a.service,
			"argc":     m.Argc,
			"stream":   m.Stream,
			"atomic":   m.Atomic,
			"params":   []any{},
			"desc":     m.Desc,
		})
		if err != nil {
			return nil, err
		}
	}
	return nil, nil
}
