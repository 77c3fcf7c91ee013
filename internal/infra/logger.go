package infra

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the root zerolog logger. Development gets a colorized
// console writer at debug level; everything else emits JSON at info.
func NewLogger(appEnv string) zerolog.Logger {
	var out = zerolog.New(os.Stdout)
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
		out = out.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return out.Level(level).With().Timestamp().Logger()
}
