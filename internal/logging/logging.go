/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/friendsincode/cadence/internal/logbuffer"
)

// Setup configures zerolog for the process.
func Setup(environment, level string) zerolog.Logger {
	return SetupWithWriter(environment, level, nil)
}

// SetupWithWriter configures zerolog, writing to out instead of stdout when out is set.
// Development gets human-readable console output, every other environment JSON lines.
func SetupWithWriter(environment, level string, out io.Writer) zerolog.Logger {
	return setup(environment, level, out, nil)
}

// SetupWithBuffer is Setup plus a copy of every line in buf.
func SetupWithBuffer(environment, level string, buf *logbuffer.Buffer) zerolog.Logger {
	return setup(environment, level, nil, buf)
}

func setup(environment, level string, out io.Writer, buf *logbuffer.Buffer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if out == nil {
		out = os.Stdout
	}

	var writer io.Writer = out
	if environment == "development" {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}
	if buf != nil {
		writer = zerolog.MultiLevelWriter(writer, logbuffer.NewWriter(buf))
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(parseLevel(environment, level))
	log.Logger = logger
	return logger
}

func parseLevel(environment, level string) zerolog.Level {
	if level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
			return parsed
		}
	}
	if environment == "development" {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
