package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitSetsLevel(t *testing.T) {
	Init("debug")
	require.Equal(t, "debug", LevelString())

	Init("WARN")
	require.Equal(t, "warn", LevelString())

	// unknown levels fall back to info
	Init("verbose")
	require.Equal(t, "info", LevelString())
}
