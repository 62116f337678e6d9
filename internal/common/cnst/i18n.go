package cnst

const (
	LangEN      = "en"
	LangFR      = "fr"
	LangDefault = LangEN
)

const (
	// XLang is the HTTP header the gateway reads the caller locale from
	XLang = "X-Lang"
)
