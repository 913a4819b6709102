// Package loggingtest builds logging services that write into test buffers.
package loggingtest

import (
	"bytes"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tyemirov/signkit/pkg/logging"
)

// NewBufferedService returns a console Service writing one line per entry into logBuffer.
func NewBufferedService(t testing.TB, logBuffer *bytes.Buffer) *logging.Service {
	t.Helper()
	encoderConfig := zapcore.EncoderConfig{MessageKey: "msg", LineEnding: zapcore.DefaultLineEnding}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(logBuffer), zapcore.InfoLevel)
	loggingService, err := logging.NewServiceWithLogger(logging.TypeConsole, zap.New(core))
	if err != nil {
		t.Fatalf("create logging service: %v", err)
	}
	return loggingService
}
