package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestGatewayLoggersWriteWarnings(t *testing.T) {
	dir := t.TempDir()

	loggers, cleanup, err := GatewayLoggers(dir, zap.NewNop(), []string{"mpesa_b2c_result", "kcb_transfer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loggers["mpesa_b2c_result"].Info("ignored below warn")
	loggers["mpesa_b2c_result"].Warn("malformed payload", zap.String("raw", `{"Result":null}`))
	cleanup()

	data, err := os.ReadFile(filepath.Join(dir, "mpesa_b2c_result.log"))
	if err != nil {
		t.Fatalf("expected log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "malformed payload") {
		t.Fatalf("expected warning in file, got %q", out)
	}
	if strings.Contains(out, "ignored below warn") {
		t.Fatalf("expected info to be filtered, got %q", out)
	}
	if !strings.Contains(out, `"gateway":"mpesa_b2c_result"`) {
		t.Fatalf("expected gateway field, got %q", out)
	}

	if _, err := os.Stat(filepath.Join(dir, "kcb_transfer.log")); err != nil {
		t.Fatalf("expected kcb_transfer.log to exist: %v", err)
	}
}

func TestGatewayLoggersWithoutDir(t *testing.T) {
	loggers, cleanup, err := GatewayLoggers("", zap.NewNop(), []string{"bank_webhook"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()
	if loggers["bank_webhook"] == nil {
		t.Fatalf("expected logger for bank_webhook")
	}
}
