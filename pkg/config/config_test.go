package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"qrprocess-pi/pkg/types"
)

func noEnvFile(t *testing.T) string {
	return "-env-file=" + filepath.Join(t.TempDir(), "missing.env")
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]string{noEnvFile(t)})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9999 || cfg.Backend != BackendV4L2 || cfg.Position != types.PositionBack {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !slices.Equal(cfg.Codes, []types.CodeType{types.CodeQR}) {
		t.Fatalf("codes = %v", cfg.Codes)
	}
	if cfg.Surface != (types.Size{Width: 1280, Height: 720}) {
		t.Fatalf("surface = %+v", cfg.Surface)
	}
	if want := types.R(460, 180, 360, 360); cfg.Focus != want {
		t.Fatalf("focus = %+v, want %+v", cfg.Focus, want)
	}
	if !cfg.AutoStart || cfg.Simulator {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestEnvFallback(t *testing.T) {
	t.Setenv("SCANNER_PORT", "8080")
	t.Setenv("SCANNER_CODES", "qr,ean13")
	t.Setenv("SCANNER_AUTO_START", "false")

	cfg, err := Parse([]string{noEnvFile(t), "-port", "7000"})
	if err != nil {
		t.Fatal(err)
	}
	// flags win over the environment
	if cfg.Port != 7000 {
		t.Errorf("port = %d", cfg.Port)
	}
	if !slices.Equal(cfg.Codes, []types.CodeType{types.CodeQR, types.CodeEAN13}) {
		t.Errorf("codes = %v", cfg.Codes)
	}
	if cfg.AutoStart {
		t.Error("auto start from env ignored")
	}
}

func TestEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanner.env")
	if err := os.WriteFile(path, []byte("SCANNER_DEVICE=/dev/video4\nSCANNER_FOCUS=10,20,30,40\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("SCANNER_DEVICE")
		os.Unsetenv("SCANNER_FOCUS")
	})

	cfg, err := Parse([]string{"-env-file", path})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Device != "/dev/video4" {
		t.Errorf("device = %q", cfg.Device)
	}
	if cfg.Focus != types.R(10, 20, 30, 40) {
		t.Errorf("focus = %+v", cfg.Focus)
	}
}

func TestInvalid(t *testing.T) {
	tests := [][]string{
		{"-backend", "gstreamer"},
		{"-position", "side"},
		{"-codes", "qr,nope"},
		{"-port", "0"},
		{"-surface", "1280"},
		{"-focus", "1,2,3"},
		{"-focus", "0,0,0,10"},
		{"-fps", "0"},
		{"-log-format", "xml"},
	}
	for _, args := range tests {
		if _, err := Parse(append([]string{noEnvFile(t)}, args...)); err == nil {
			t.Errorf("%v: no error", args)
		}
	}

	t.Setenv("SCANNER_PORT", "http")
	if _, err := Parse([]string{noEnvFile(t)}); err == nil {
		t.Error("invalid SCANNER_PORT accepted")
	}
}
