package cnst

// Tracer names used across the services
const (
	// TraceSession is the tracer name for client and server sessions
	TraceSession = "osrf/session"
	// TraceGateway is the tracer name for the HTTP gateway
	TraceGateway = "osrf/gateway"
)

// Common span names and prefixes
const (
	// SpanClientRequest covers a client request from send to completion
	SpanClientRequest = "osrf.client.request"
	// SpanServerMethodPrefix prefixes spans for dispatched application methods
	SpanServerMethodPrefix = "osrf.method."
	// SpanGatewayRequest covers one gateway round trip
	SpanGatewayRequest = "osrf.gateway.request"
)

// Common attribute keys
const (
	AttrService     = "osrf.service"
	AttrMethod      = "osrf.method"
	AttrThread      = "osrf.thread"
	AttrThreadTrace = "osrf.thread_trace"
	AttrStatusCode  = "osrf.status_code"
	AttrTransport   = "transport.type"
	AttrClientAddr  = "client.remote_addr"
	AttrErrorReason = "error.reason"
	AttrHTTPStatus  = "http.status_code"
)
