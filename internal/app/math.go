package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/amoylab/osrf/internal/session"

	"go.uber.org/zap"
)

// Services of the bundled arithmetic applications
const (
	ServiceMath   = "opensrf.math"
	ServiceDBMath = "opensrf.dbmath"
)

var mathMethods = []struct {
	name string
	desc string
	fn   func(a, b float64) (float64, error)
}{
	{"add", "Adds two numbers", func(a, b float64) (float64, error) { return a + b, nil }},
	{"sub", "Subtracts two numbers", func(a, b float64) (float64, error) { return a - b, nil }},
	{"mult", "Multiplies two numbers", func(a, b float64) (float64, error) { return a * b, nil }},
	{"div", "Divides two numbers", func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a / b, nil
	}},
}

// NewDBMath creates the opensrf.dbmath application, which computes the
// arithmetic methods itself
func NewDBMath(logger *zap.Logger, opts ...Option) *Application {
	a := New(logger, ServiceDBMath, opts...)
	for _, m := range mathMethods {
		fn := m.fn
		_ = a.RegisterMethod(Method{
			Name: m.name,
			Argc: 2,
			Desc: m.desc,
			Handler: func(_ context.Context, _ *session.ServerRequest, params []any) (any, error) {
				x, y, err := operands(params)
				if err != nil {
					return nil, err
				}
				return fn(x, y)
			},
		})
	}
	return a
}

// NewMath creates the opensrf.math application. Every call is forwarded to
// opensrf.dbmath over the bus and its answer relayed.
func NewMath(logger *zap.Logger, opts ...Option) *Application {
	a := New(logger, ServiceMath, opts...)
	for _, m := range mathMethods {
		name := m.name
		_ = a.RegisterMethod(Method{
			Name: name,
			Argc: 2,
			Desc: m.desc,
			Handler: func(ctx context.Context, req *session.ServerRequest, params []any) (any, error) {
				x, y, err := operands(params)
				if err != nil {
					return nil, err
				}
				a.logger.Debug("running opensrf.math",
					zap.String("method", name),
					zap.Float64("a", x),
					zap.Float64("b", y))

				res, err := req.Session().Stack().AtomicRequest(ctx, ServiceDBMath, name, x, y)
				if err != nil {
					return nil, err
				}
				if res == nil {
					return nil, fmt.Errorf("no response from %s", ServiceDBMath)
				}
				return res, nil
			},
		})
	}
	return a
}

// operands reads the first two params as numbers. Clients may send them as
// JSON numbers or numeric strings.
func operands(params []any) (float64, float64, error) {
	if len(params) < 2 {
		return 0, 0, fmt.Errorf("expected two operands, got %d", len(params))
	}
	x, err := toFloat(params[0])
	if err != nil {
		return 0, 0, err
	}
	y, err := toFloat(params[1])
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid operand %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("invalid operand %v", v)
	}
}
