package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

const (
	classKey   = "__c"
	payloadKey = "__p"
)

// ErrMalformed is returned when an envelope body is not a valid message batch.
var ErrMalformed = errors.New("malformed message body")

type hinted struct {
	Class string `json:"__c"`
	Data  any    `json:"__p"`
}

type wireMessage struct {
	ThreadTrace int         `json:"threadTrace"`
	Locale      string      `json:"locale,omitempty"`
	Type        MessageType `json:"type"`
	Payload     *hinted     `json:"payload,omitempty"`
	Ingress     string      `json:"ingress,omitempty"`
}

// Encode serializes a batch of messages into one envelope body.
func Encode(msgs ...*Message) ([]byte, error) {
	batch := make([]hinted, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		wm := &wireMessage{
			ThreadTrace: m.ThreadTrace,
			Locale:      m.Locale,
			Type:        m.Type,
			Ingress:     m.Ingress,
		}
		if m.Payload != nil {
			wm.Payload = wrapPayload(m.Payload)
		}
		batch = append(batch, hinted{Class: HintMessage, Data: wm})
	}
	return json.Marshal(batch)
}

func wrapPayload(p Payload) *hinted {
	if o, ok := p.(*Opaque); ok {
		return &hinted{Class: o.Class, Data: o.Data}
	}
	return &hinted{Class: p.Hint(), Data: p}
}

// Decode parses an envelope body into its messages. A single object is
// accepted as a batch of one.
func Decode(body []byte) ([]*Message, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(body)

	var items []gjson.Result
	switch {
	case root.IsArray():
		items = root.Array()
	case root.IsObject():
		items = []gjson.Result{root}
	default:
		return nil, fmt.Errorf("%w: expected array or object", ErrMalformed)
	}

	msgs := make([]*Message, 0, len(items))
	for i, item := range items {
		m, err := decodeMessage(item)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func decodeMessage(item gjson.Result) (*Message, error) {
	if hint := item.Get(classKey).String(); hint != HintMessage {
		return nil, fmt.Errorf("%w: unexpected class %q", ErrMalformed, hint)
	}
	p := item.Get(payloadKey)
	if !p.IsObject() {
		return nil, fmt.Errorf("%w: missing message body", ErrMalformed)
	}

	m := &Message{
		ThreadTrace: int(p.Get("threadTrace").Int()),
		Locale:      p.Get("locale").String(),
		Type:        MessageType(p.Get("type").String()),
		Ingress:     p.Get("ingress").String(),
	}
	switch m.Type {
	case TypeConnect, TypeDisconnect, TypeRequest, TypeResult, TypeStatus:
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrMalformed, m.Type)
	}

	if pl := p.Get("payload"); pl.Exists() && pl.Type != gjson.Null {
		payload, err := decodePayload(pl)
		if err != nil {
			return nil, err
		}
		m.Payload = payload
	}
	return m, nil
}

func decodePayload(pl gjson.Result) (Payload, error) {
	data := pl.Get(payloadKey)
	switch hint := pl.Get(classKey).String(); hint {
	case HintMethod:
		params, err := decodeParams(data.Get("params"))
		if err != nil {
			return nil, err
		}
		return &Method{Method: data.Get("method").String(), Params: params}, nil
	case HintResult:
		content, err := rawValue(data.Get("content"))
		if err != nil {
			return nil, err
		}
		return &Result{
			Status:     data.Get("status").String(),
			StatusCode: StatusCode(data.Get("statusCode").Int()),
			Content:    content,
		}, nil
	case HintConnectStatus:
		return &ConnectStatus{
			Status:     data.Get("status").String(),
			StatusCode: StatusCode(data.Get("statusCode").Int()),
		}, nil
	case HintMethodException:
		return &MethodException{
			Status:     data.Get("status").String(),
			StatusCode: StatusCode(data.Get("statusCode").Int()),
		}, nil
	case "":
		v, err := rawValue(pl)
		if err != nil {
			return nil, err
		}
		return &Opaque{Data: v}, nil
	default:
		v, err := rawValue(data)
		if err != nil {
			return nil, err
		}
		return &Opaque{Class: hint, Data: v}, nil
	}
}

func decodeParams(r gjson.Result) ([]any, error) {
	if !r.Exists() || r.Type == gjson.Null {
		return []any{}, nil
	}
	if !r.IsArray() {
		v, err := rawValue(r)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}
	var params []any
	if err := json.Unmarshal([]byte(r.Raw), &params); err != nil {
		return nil, fmt.Errorf("%w: params: %v", ErrMalformed, err)
	}
	return params, nil
}

func rawValue(r gjson.Result) (any, error) {
	if !r.Exists() {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(r.Raw), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}
