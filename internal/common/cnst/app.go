package cnst

const (
	AppName = "osrf"
	// ServerCommandName is the binary hosting services on the bus
	ServerCommandName = "osrf-server"
	// GatewayCommandName is the binary bridging HTTP to the bus
	GatewayCommandName = "osrf-gateway"
	// ShellCommandName is the interactive client
	ShellCommandName = "srfsh"
)

const (
	// DefaultIngress tags messages that did not set an ingress of their own
	DefaultIngress = "opensrf"
	// DefaultLocale is applied to sessions created without an explicit locale
	DefaultLocale = "en-US"
)
