package protocol

import "strconv"

// StatusCode is the numeric status carried by RESULT and STATUS payloads.
type StatusCode int

const (
	StatusContinue            StatusCode = 100
	StatusOK                  StatusCode = 200
	StatusAccepted            StatusCode = 202
	StatusComplete            StatusCode = 205
	StatusRedirected          StatusCode = 307
	StatusBadRequest          StatusCode = 400
	StatusUnauthorized        StatusCode = 401
	StatusForbidden           StatusCode = 403
	StatusNotFound            StatusCode = 404
	StatusNotAllowed          StatusCode = 405
	StatusTimeout             StatusCode = 408
	StatusExpFailed           StatusCode = 417
	StatusInternalServerError StatusCode = 500
	StatusNotImplemented      StatusCode = 501
	StatusVersionNotSupported StatusCode = 505
)

var statusNames = map[StatusCode]string{
	StatusContinue:            "CONTINUE",
	StatusOK:                  "OK",
	StatusAccepted:            "ACCEPTED",
	StatusComplete:            "COMPLETE",
	StatusRedirected:          "REDIRECTED",
	StatusBadRequest:          "BADREQUEST",
	StatusUnauthorized:        "UNAUTHORIZED",
	StatusForbidden:           "FORBIDDEN",
	StatusNotFound:            "NOTFOUND",
	StatusNotAllowed:          "NOTALLOWED",
	StatusTimeout:             "TIMEOUT",
	StatusExpFailed:           "EXPFAILED",
	StatusInternalServerError: "INTERNALSERVERERROR",
	StatusNotImplemented:      "NOTIMPLEMENTED",
	StatusVersionNotSupported: "VERSIONNOTSUPPORTED",
}

func (c StatusCode) String() string {
	if name, ok := statusNames[c]; ok {
		return name
	}
	return strconv.Itoa(int(c))
}

// IsError reports whether the code signals a failed exchange.
func (c StatusCode) IsError() bool {
	return c >= StatusBadRequest
}

// Default status texts, used when no translation is available.
const (
	TextOK             = "OK"
	TextConnectOK      = "Connection Successful"
	TextComplete       = "Request Complete"
	TextMethodNotFound = "Method [%s] not found for %s"
	TextTimeout        = "Disconnected on timeout"
	TextBadRequest     = "Bad request"
	TextServerError    = "Internal server error"
)
