package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/amoylab/osrf/internal/app"
	"github.com/amoylab/osrf/internal/session"

	"github.com/tidwall/gjson"
)

// parseParams decodes each argument as one JSON value
func parseParams(args []string) ([]any, error) {
	params := make([]any, 0, len(args))
	for _, arg := range args {
		if !gjson.Valid(arg) {
			return nil, fmt.Errorf("invalid JSON param: %s", arg)
		}
		params = append(params, gjson.Parse(arg).Value())
	}
	return params, nil
}

// request calls method on service and prints each response as it arrives,
// followed by the request timing
func request(ctx context.Context, st *session.Stack, out io.Writer, service, method string, params []any) error {
	ses := st.NewClientSession(service)
	defer ses.Cleanup()

	req, err := ses.RequestWithParams(ctx, method, params)
	if err != nil {
		return err
	}
	defer req.Cleanup()

	count := 0
	for {
		res, err := req.Recv(ctx, st.RequestTimeout())
		if err != nil {
			return err
		}
		if res == nil {
			break
		}
		count++
		data, err := json.MarshalIndent(res.Content, "", "  ")
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Received Data: %s\n\n", data)
	}
	if !req.Complete() {
		return fmt.Errorf("request timed out after %s", st.RequestTimeout())
	}

	_, _ = fmt.Fprintln(out, "------------------------------------")
	_, _ = fmt.Fprintf(out, "Request Completed Successfully\n")
	_, _ = fmt.Fprintf(out, "Request Time in seconds: %.6f\n", req.CompleteTime().Sub(req.SendTime()).Seconds())
	if !req.FirstResponseTime().IsZero() {
		_, _ = fmt.Fprintf(out, "First response in seconds: %.6f\n", req.FirstResponseTime().Sub(req.SendTime()).Seconds())
	}
	_, _ = fmt.Fprintf(out, "Responses: %d\n", count)
	_, _ = fmt.Fprintln(out, "------------------------------------")
	return nil
}

// introspect lists the published methods of service, optionally only
// those starting with prefix
func introspect(ctx context.Context, st *session.Stack, out io.Writer, service string, prefix ...string) error {
	if len(prefix) > 0 && prefix[0] != "" {
		return request(ctx, st, out, service, app.MethodSystemMethod, []any{prefix[0]})
	}
	return request(ctx, st, out, service, app.MethodSystemMethodAll, nil)
}
