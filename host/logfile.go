package host

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// openLogFile tees the host logger into h.logFile.
func (h *Host) openLogFile() error {
	if h.clearLogFile {
		if err := os.Truncate(h.logFile, 0); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clearing log file: %w", err)
		}
	}
	sink, _, err := zap.Open(h.logFile)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), sink, zapcore.DebugLevel)

	h.logger = h.logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	}))
	// the file stays open for late log lines until the process exits
	h.syncLogFile = func() { _ = sink.Sync() }
	return nil
}
