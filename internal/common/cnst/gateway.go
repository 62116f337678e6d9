package cnst

// HTTP headers understood by the translator endpoint
const (
	HeaderTo        = "X-OpenSRF-to"
	HeaderXid       = "X-OpenSRF-xid"
	HeaderFrom      = "X-OpenSRF-from"
	HeaderThread    = "X-OpenSRF-thread"
	HeaderTimeout   = "X-OpenSRF-timeout"
	HeaderService   = "X-OpenSRF-service"
	HeaderMultipart = "X-OpenSRF-multipart"
)

const (
	// GatewayPath is the JSON gateway route
	GatewayPath = "/gateway"
	// TranslatorPath is the raw message translator route
	TranslatorPath = "/osrf-http-translator"
	// TranslatorForm is the form field carrying the message batch
	TranslatorForm = "osrf-msg"
)
