package logging

import (
	"testing"

	golog "github.com/ipfs/go-log/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipranges/internal/config"
)

func TestParseFormat(t *testing.T) {
	assert.Equal(t, golog.JSONOutput, ParseFormat("JSON"))
	assert.Equal(t, golog.PlaintextOutput, ParseFormat("plain"))
	assert.Equal(t, golog.ColorizedOutput, ParseFormat("color"))
	assert.Equal(t, golog.ColorizedOutput, ParseFormat(""))
}

func TestSetup(t *testing.T) {
	log := Logger("logging-test")
	require.NotNil(t, log)

	require.NoError(t, Setup(config.LoggingConfig{
		Level:      "debug",
		Format:     "plain",
		Subsystems: map[string]string{"logging-test": "warn"},
	}))
	require.Error(t, Setup(config.LoggingConfig{Level: "verbose"}))

	require.NoError(t, Setup(config.LoggingConfig{}))
}
