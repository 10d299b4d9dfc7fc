package logging

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const ErrorKey = "error"

// Logger is the subset of *zap.SugaredLogger the app uses, plus WithError/With
// returning Logger so callers never depend on zap directly.
type Logger interface {
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	WithError(error) Logger
	With(args ...interface{}) Logger
}

type logger struct {
	*zap.SugaredLogger
}

func (l *logger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return &logger{SugaredLogger: l.SugaredLogger.With(ErrorKey, err.Error())}
}

func (l *logger) With(args ...interface{}) Logger {
	return &logger{SugaredLogger: l.SugaredLogger.With(args...)}
}

// ParseLevel maps a config level name to a zap level, defaulting to info.
func ParseLevel(level string) (zapcore.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel, errors.Errorf("invalid log level %q", level)
	}
	return l, nil
}

// MustMakeCommandLogger builds a console logger writing to stderr.
func MustMakeCommandLogger(level zapcore.Level) Logger {
	encodingConfig := zap.NewProductionEncoderConfig()
	encodingConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encodingConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encodingConfig.EncodeDuration = zapcore.StringDurationEncoder
	encodingConfig.EncodeCaller = zapcore.ShortCallerEncoder

	zconf := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encodingConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := zconf.Build()
	if err != nil {
		panic(err.Error())
	}
	return &logger{SugaredLogger: l.Sugar()}
}

// MustMakeJSONLogger builds a JSON logger for hosted deployments such as Lambda.
func MustMakeJSONLogger(level zapcore.Level) Logger {
	zconf := zap.NewProductionConfig()
	zconf.Level = zap.NewAtomicLevelAt(level)
	l, err := zconf.Build()
	if err != nil {
		panic(err.Error())
	}
	return &logger{SugaredLogger: l.Sugar()}
}

func NewTestLogger() Logger {
	l, err := zap.NewDevelopmentConfig().Build()
	if err != nil {
		panic(err.Error())
	}
	return &logger{SugaredLogger: l.Sugar()}
}

// NewNopLogger discards everything.
func NewNopLogger() Logger {
	return &logger{SugaredLogger: zap.NewNop().Sugar()}
}
