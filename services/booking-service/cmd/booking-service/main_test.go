package main

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestParseReminderOffsets(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	got := parseReminderOffsets("1440, 60,,abc,-5", logger)
	if len(got) != 2 || got[0] != 24*time.Hour || got[1] != time.Hour {
		t.Fatalf("unexpected offsets %v", got)
	}
	if got := parseReminderOffsets("", logger); len(got) != 1 || got[0] != 24*time.Hour {
		t.Fatalf("expected default 24h offset, got %v", got)
	}
}
