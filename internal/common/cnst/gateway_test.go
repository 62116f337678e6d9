package cnst

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGatewayConstants(t *testing.T) {
	assert.Equal(t, "X-OpenSRF-service", HeaderService)
	assert.Equal(t, "X-OpenSRF-thread", HeaderThread)
	assert.Equal(t, "/osrf-http-translator", TranslatorPath)
	assert.Equal(t, "osrf-msg", TranslatorForm)
}
