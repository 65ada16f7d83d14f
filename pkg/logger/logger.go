package logx

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Level  string `split_words:"true" default:"info"`
	Pretty bool   `split_words:"true" default:"false"`
}

// Init replaces the global zerolog logger. Unknown level strings fall
// back to info.
func Init(conf Config) {
	var out zerolog.Logger
	if conf.Pretty {
		out = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		out = zerolog.New(os.Stdout)
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(conf.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	log.Logger = out.Level(level).With().Timestamp().Caller().Stack().Logger()
}
