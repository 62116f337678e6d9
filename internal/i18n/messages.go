package i18n

import (
	"github.com/amoylab/osrf/internal/protocol"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// Message IDs of the status texts sent to clients
const (
	MsgConnectOK      = "StatusConnectOK"
	MsgComplete       = "StatusComplete"
	MsgMethodNotFound = "StatusMethodNotFound"
	MsgTimeout        = "StatusTimeout"
	MsgBadRequest     = "StatusBadRequest"
	MsgServerError    = "StatusServerError"
)

var defaultMessages = []*i18n.Message{
	{ID: MsgConnectOK, Other: protocol.TextConnectOK},
	{ID: MsgComplete, Other: protocol.TextComplete},
	{ID: MsgMethodNotFound, Other: "Method [{{.Method}}] not found for {{.Service}}"},
	{ID: MsgTimeout, Other: protocol.TextTimeout},
	{ID: MsgBadRequest, Other: protocol.TextBadRequest},
	{ID: MsgServerError, Other: protocol.TextServerError},
}
