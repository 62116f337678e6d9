package protocol

// MessageType is the kind of an osrfMessage.
type MessageType string

const (
	TypeConnect    MessageType = "CONNECT"
	TypeDisconnect MessageType = "DISCONNECT"
	TypeRequest    MessageType = "REQUEST"
	TypeResult     MessageType = "RESULT"
	TypeStatus     MessageType = "STATUS"
)

// Class hints of the network objects this package understands.
const (
	HintMessage         = "osrfMessage"
	HintMethod          = "osrfMethod"
	HintResult          = "osrfResult"
	HintConnectStatus   = "osrfConnectStatus"
	HintMethodException = "osrfMethodException"
)

// Message is one protocol message. Several messages travel in one envelope.
type Message struct {
	ThreadTrace int
	Locale      string
	Type        MessageType
	Payload     Payload
	Ingress     string
}

// Payload is the typed body of a message.
type Payload interface {
	Hint() string
}

// Status is implemented by the payloads a STATUS message can carry.
type Status interface {
	Payload
	Code() StatusCode
	Text() string
}

// Method is the payload of a REQUEST.
type Method struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

func (*Method) Hint() string { return HintMethod }

// Result is the payload of a RESULT.
type Result struct {
	Status     string     `json:"status"`
	StatusCode StatusCode `json:"statusCode"`
	Content    any        `json:"content"`
}

func (*Result) Hint() string { return HintResult }

// ConnectStatus is the general STATUS payload: connect ack, completion, not found.
type ConnectStatus struct {
	Status     string     `json:"status"`
	StatusCode StatusCode `json:"statusCode"`
}

func (*ConnectStatus) Hint() string       { return HintConnectStatus }
func (s *ConnectStatus) Code() StatusCode { return s.StatusCode }
func (s *ConnectStatus) Text() string     { return s.Status }

// MethodException reports a failure raised while running a method.
type MethodException struct {
	Status     string     `json:"status"`
	StatusCode StatusCode `json:"statusCode"`
}

func (*MethodException) Hint() string       { return HintMethodException }
func (e *MethodException) Code() StatusCode { return e.StatusCode }
func (e *MethodException) Text() string     { return e.Status }

// Opaque keeps a payload whose class hint is not known to this package.
type Opaque struct {
	Class string
	Data  any
}

func (o *Opaque) Hint() string { return o.Class }

var (
	_ Status = (*ConnectStatus)(nil)
	_ Status = (*MethodException)(nil)
)

// NewConnect builds a CONNECT message.
func NewConnect(trace int) *Message {
	return &Message{ThreadTrace: trace, Type: TypeConnect}
}

// NewDisconnect builds a DISCONNECT message.
func NewDisconnect(trace int) *Message {
	return &Message{ThreadTrace: trace, Type: TypeDisconnect}
}

// NewRequest builds a REQUEST carrying method and params.
func NewRequest(trace int, method string, params []any) *Message {
	if params == nil {
		params = []any{}
	}
	return &Message{ThreadTrace: trace, Type: TypeRequest, Payload: &Method{Method: method, Params: params}}
}

// NewResult builds a RESULT with status OK.
func NewResult(trace int, content any) *Message {
	return &Message{ThreadTrace: trace, Type: TypeResult, Payload: &Result{
		Status:     TextOK,
		StatusCode: StatusOK,
		Content:    content,
	}}
}

// NewStatus builds a STATUS message carrying status.
func NewStatus(trace int, status Status) *Message {
	return &Message{ThreadTrace: trace, Type: TypeStatus, Payload: status}
}

// NewConnectStatus builds a STATUS with a ConnectStatus payload.
func NewConnectStatus(trace int, code StatusCode, text string) *Message {
	return NewStatus(trace, &ConnectStatus{Status: text, StatusCode: code})
}

// StatusOf returns the status payload of a STATUS message, or nil.
func (m *Message) StatusOf() Status {
	if m == nil {
		return nil
	}
	s, _ := m.Payload.(Status)
	return s
}
