package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewFallsBackToInfo(t *testing.T) {
	logger := New("not-a-level", "escrow")
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("debug should be disabled for an invalid level")
	}
	if !logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info should be enabled")
	}
}

func TestDiscardOnlyErrors(t *testing.T) {
	if Discard().Enabled(context.Background(), slog.LevelWarn) {
		t.Fatalf("discard logger should drop warnings")
	}
}
