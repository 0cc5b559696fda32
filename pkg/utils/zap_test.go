package utils

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { _ = SetLevel("debug") })

	if err := SetLevel("warn"); err != nil {
		t.Fatal(err)
	}
	if GetLogger().Desugar().Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info enabled at warn level")
	}
	if err := SetLevel("loud"); err == nil {
		t.Fatal("unknown level accepted")
	}
}

func TestSetFormat(t *testing.T) {
	t.Cleanup(func() { _ = SetFormat(FormatConsole) })

	if err := SetFormat(FormatJSON); err != nil {
		t.Fatal(err)
	}
	if err := SetFormat("xml"); err == nil {
		t.Fatal("unknown format accepted")
	}
}
