package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/casualjim/strix/pkg/slogx"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	setLogLevel(slog.LevelWarn)
}

func setLogLevel(level slog.Level) {
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}),
	))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("strix failed", slogx.Error(err))
		os.Exit(1)
	}
}
