package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWriterLevel(t *testing.T) {
	t.Cleanup(func() { Logger = nil })
	var buf bytes.Buffer
	InitWriter(&buf, "warn")

	Info("hidden")
	Warn("shown", "sample", "s1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info logged at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "sample=s1") {
		t.Errorf("warn line missing: %s", out)
	}
}

func TestInitCreatesDatedFile(t *testing.T) {
	t.Cleanup(func() {
		Close()
		Logger = nil
	})
	dir := t.TempDir()
	if err := Init(dir, "debug"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	Debug("hello")
	Close()

	matches, _ := filepath.Glob(filepath.Join(dir, "logs", "nlpanno-*.log"))
	if len(matches) != 1 {
		t.Fatalf("log files = %v", matches)
	}
	data, _ := os.ReadFile(matches[0])
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log content = %s", data)
	}
}

func TestHelpersBeforeInit(t *testing.T) {
	Logger = nil
	Info("dropped")
	Error("dropped")
	if WithPrefix("x") == nil {
		t.Error("WithPrefix should never return nil")
	}
}
