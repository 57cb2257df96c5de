package utils

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger_levels(t *testing.T) {
	for _, debug := range []bool{true, false} {
		logger, err := NewLogger(debug)
		if err != nil {
			t.Fatalf("NewLogger(%v): %v", debug, err)
		}
		if got := logger.Core().Enabled(zap.DebugLevel); got != debug {
			t.Errorf("NewLogger(%v): debug enabled = %v", debug, got)
		}
		if !logger.Core().Enabled(zap.InfoLevel) {
			t.Errorf("NewLogger(%v): info should always be enabled", debug)
		}
		_ = logger.Sync()
	}
}
