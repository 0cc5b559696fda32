package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	logger *zap.SugaredLogger
	// shared by every logger built here, so SetLevel reaches loggers already handed out
	level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
)

func init() {
	logger = NewLogger(FormatConsole)
}

func GetLogger() *zap.SugaredLogger {
	return logger
}

// SetLevel changes the level of every logger, e.g. "info".
func SetLevel(text string) error {
	return level.UnmarshalText([]byte(text))
}

// SetFormat replaces the default logger's encoding. Loggers fetched earlier keep theirs.
func SetFormat(format string) error {
	if format != FormatConsole && format != FormatJSON {
		return fmt.Errorf("unknown log format %q", format)
	}
	logger = NewLogger(format)
	return nil
}

func NewLogger(format string) *zap.SugaredLogger {
	enc := zapcore.EncoderConfig{
		MessageKey:  "msg",
		LevelKey:    "level",
		TimeKey:     "time",
		NameKey:     "logger",
		EncodeLevel: zapcore.CapitalLevelEncoder,
		EncodeTime:  zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeName:  zapcore.FullNameEncoder,
	}
	if format == FormatJSON {
		enc.EncodeLevel = zapcore.LowercaseLevelEncoder
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg := zap.Config{
		Level:            level,
		Encoding:         format,
		EncoderConfig:    enc,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l.Sugar()
}
