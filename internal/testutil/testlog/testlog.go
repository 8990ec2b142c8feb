package testlog

import (
	"testing"

	"github.com/rs/zerolog"
)

// Start returns a debug-level logger that writes through t.Log.
func Start(t testing.TB) zerolog.Logger {
	t.Helper()
	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)
	logger.Info().Str("test", t.Name()).Msg("start")
	return logger
}
