package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTypedGetters(t *testing.T) {
	t.Setenv("SD_INT", "42")
	t.Setenv("SD_BAD_INT", "forty")
	t.Setenv("SD_BOOL", "yes")
	t.Setenv("SD_DUR", "90s")
	t.Setenv("SD_DUR_SECS", "5")
	t.Setenv("SD_LIST", " a, ,b ,c")

	if got := Int("SD_INT", 1); got != 42 {
		t.Fatalf("Int: expected 42, got %d", got)
	}
	if got := Int("SD_BAD_INT", 7); got != 7 {
		t.Fatalf("Int fallback: expected 7, got %d", got)
	}
	if !Bool("SD_BOOL", false) {
		t.Fatal("Bool: expected true")
	}
	if Bool("SD_UNSET_BOOL", false) {
		t.Fatal("Bool fallback: expected false")
	}
	if got := Duration("SD_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("Duration: expected 90s, got %s", got)
	}
	if got := Duration("SD_DUR_SECS", time.Second); got != 5*time.Second {
		t.Fatalf("Duration seconds: expected 5s, got %s", got)
	}
	list := List("SD_LIST", "")
	if len(list) != 3 || list[0] != "a" || list[1] != "b" || list[2] != "c" {
		t.Fatalf("List: unexpected %v", list)
	}
}

func TestPort(t *testing.T) {
	t.Setenv("SD_PORT", "99999")
	if _, err := Port("SD_PORT", "8080"); err == nil {
		t.Fatal("expected error for out of range port")
	}
	if p, err := Port("SD_PORT_UNSET", "8080"); err != nil || p != "8080" {
		t.Fatalf("expected fallback port 8080, got %q (%v)", p, err)
	}
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("SD_FROM_FILE=clinic\nSD_PRESET=file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("SD_PRESET", "env")
	t.Cleanup(func() { _ = os.Unsetenv("SD_FROM_FILE") })

	if err := Load(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := String("SD_FROM_FILE", ""); got != "clinic" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := String("SD_PRESET", ""); got != "env" {
		t.Fatalf("expected existing env to win, got %q", got)
	}
}
