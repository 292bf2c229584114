package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	conf := Config{Server: ServerConfig{URL: "http://localhost:8002"}}
	assert.NoError(t, conf.Validate())

	conf = Config{Server: ServerConfig{URLs: []string{"http://10.26.104.1:8002", "http://10.26.104.2:8002"}}}
	assert.NoError(t, conf.Validate())

	conf = Config{}
	assert.ErrorContains(t, conf.Validate(), "missing url")

	conf = Config{Server: ServerConfig{URL: "http://[::1"}}
	assert.Error(t, conf.Validate())
}
