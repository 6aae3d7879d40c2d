package utils

import (
	"io"
	"os"
	"path/filepath"

	"github.com/edgeforge/nodeforge/internal/constants"
	"github.com/rs/zerolog"
)

// Log is the package logger shared by every command.
var Log zerolog.Logger

func init() {
	Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// SetLogger configures console output on stderr plus a persistent log file
// under LogDir. Debug level comes from --debug or NODEFORGE_DEBUG.
func SetLogger(debug bool) {
	level := zerolog.InfoLevel
	if debug || os.Getenv("NODEFORGE_DEBUG") != "" {
		level = zerolog.DebugLevel
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}}
	_ = os.MkdirAll(constants.LogDir, os.ModeDir|os.ModePerm)
	f, err := os.OpenFile(filepath.Join(constants.LogDir, "nodeforge.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err == nil {
		writers = append(writers, f)
	}

	Log = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger().Level(level)
}
