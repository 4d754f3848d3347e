package tracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitJaeger_AgentByDefault(t *testing.T) {
	cfg := initJaeger(&JaegerConfig{
		ServiceName:  "lenderinbox",
		AgentHost:    "localhost",
		AgentPort:    "6831",
		SamplerType:  "const",
		SamplerParam: 1,
	})

	assert.True(t, cfg.Disabled)
	assert.Equal(t, "lenderinbox", cfg.ServiceName)
	assert.Equal(t, "localhost:6831", cfg.Reporter.LocalAgentHostPort)
	assert.Empty(t, cfg.Reporter.CollectorEndpoint)
}

func TestInitJaeger_CollectorEndpoint(t *testing.T) {
	cfg := initJaeger(&JaegerConfig{
		ServiceName: "lenderinbox",
		Endpoint:    "http://jaeger:14268/api/traces",
		Enabled:     true,
	})

	assert.False(t, cfg.Disabled)
	assert.Equal(t, "http://jaeger:14268/api/traces", cfg.Reporter.CollectorEndpoint)
	assert.Empty(t, cfg.Reporter.LocalAgentHostPort)
}
