// Package testlog routes the global zerolog logger into the running test.
package testlog

import (
	"testing"

	"github.com/danmuck/cqc/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Start sends log output to t.Log for the duration of the test, so it only
// shows up for failing tests or with -v.
func Start(t testing.TB) {
	t.Helper()
	logging.ConfigureTests()
	prev := log.Logger
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:     zerolog.NewTestWriter(t),
		NoColor: true,
	}).With().Str("test", t.Name()).Logger()
	t.Cleanup(func() {
		log.Logger = prev
	})
}
