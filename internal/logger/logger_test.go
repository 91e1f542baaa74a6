package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestGet_BeforeInitIsDisabled(t *testing.T) {
	Reset()
	l := Get()
	require.Equal(t, zerolog.Disabled, l.GetLevel())
}

func TestInit_WritesJSONAtLevel(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	var buf bytes.Buffer
	l := Init(Options{Level: "warn", Output: &buf})

	l.Info().Msg("dropped")
	l.Warn().Str("reason", "token_expired").Msg("kept")

	require.NotContains(t, buf.String(), "dropped")
	require.Contains(t, buf.String(), `"reason":"token_expired"`)
	require.Equal(t, zerolog.WarnLevel, Get().GetLevel())
}
