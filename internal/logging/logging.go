// Package logging constructs the harvester's single append-only log
// sink, matching spec.md §5 ("Logging goes to a single file handle
// opened append-only").
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New opens (creating if necessary) the log file at path and returns a
// zap.Logger that writes JSON-encoded records to it, additionally
// teeing to stderr so a foreground run is still visible.
func New(path string) (*zap.Logger, func() error, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %q: %w", path, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(f), zap.InfoLevel)
	consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stderr), zap.InfoLevel)

	logger := zap.New(zapcore.NewTee(fileCore, consoleCore))
	return logger, f.Close, nil
}
