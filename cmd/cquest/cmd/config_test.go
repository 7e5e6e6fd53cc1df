package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigValue(t *testing.T) {
	cfg := configDefaults()

	port, err := getConfigValue(cfg, "server.port")
	require.NoError(t, err)
	assert.Equal(t, 8790, port)

	section, err := getConfigValue(cfg, "logging")
	require.NoError(t, err)
	require.IsType(t, map[string]interface{}{}, section)
	assert.Equal(t, "console", section.(map[string]interface{})["format"])

	_, err = getConfigValue(cfg, "server.nope")
	assert.EqualError(t, err, "unknown config key: server.nope")

	_, err = getConfigValue(cfg, "server.port.deeper")
	assert.Error(t, err)
}

func TestSetNestedValue(t *testing.T) {
	data := map[string]interface{}{"server": map[string]interface{}{"host": "0.0.0.0"}}

	require.NoError(t, setNestedValue(data, "server.port", 9000))
	require.NoError(t, setNestedValue(data, "logging.level", "debug"))
	assert.Equal(t, map[string]interface{}{
		"server":  map[string]interface{}{"host": "0.0.0.0", "port": 9000},
		"logging": map[string]interface{}{"level": "debug"},
	}, data)

	assert.Error(t, setNestedValue(data, "server.port.x", 1))
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, 42, parseValue("42"))
	assert.Equal(t, "debug", parseValue("debug"))
	assert.Equal(t, []interface{}{"Bash(*)", "Read(*)"}, parseValue("Bash(*), Read(*)"))
}
