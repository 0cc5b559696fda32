// Package config reads the host service settings from flags, falling back to environment
// variables and an optional .env file for every flag left unset.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"qrprocess-pi/pkg/types"
)

const (
	BackendV4L2         = "v4l2"
	BackendMediaDevices = "mediadevices"
)

type Config struct {
	Device      string
	FrontDevice string
	Backend     string
	Position    types.CameraPosition
	Codes       []types.CodeType
	FPS         int

	Port int
	// Surface is the size of the virtual preview view.
	Surface types.Size
	// Focus is the rect of interest inside the preview, in preview coordinates.
	Focus types.Rect

	PermissionFile string
	Record         string
	LogLevel       string
	LogFormat      string
	AutoStart      bool
	Simulator      bool
	EnvFile        string
}

// flag name -> environment variable
var envNames = map[string]string{
	"device":          "SCANNER_DEVICE",
	"front-device":    "SCANNER_FRONT_DEVICE",
	"backend":         "SCANNER_BACKEND",
	"position":        "SCANNER_POSITION",
	"codes":           "SCANNER_CODES",
	"fps":             "SCANNER_FPS",
	"port":            "SCANNER_PORT",
	"surface":         "SCANNER_SURFACE",
	"focus":           "SCANNER_FOCUS",
	"permission-file": "SCANNER_PERMISSION_FILE",
	"record":          "SCANNER_RECORD",
	"log-level":       "SCANNER_LOG_LEVEL",
	"log-format":      "SCANNER_LOG_FORMAT",
	"auto-start":      "SCANNER_AUTO_START",
	"simulator":       "SCANNER_SIMULATOR",
}

// Parse parses args (without the program name).
func Parse(args []string) (Config, error) {
	var (
		cfg                          Config
		position, codes, surf, focus string
	)

	fset := flag.NewFlagSet("qrprocess-pi", flag.ContinueOnError)
	fset.StringVar(&cfg.Device, "device", "", "back camera device node, discovered when empty")
	fset.StringVar(&cfg.FrontDevice, "front-device", "", "front camera device node, discovered when empty")
	fset.StringVar(&cfg.Backend, "backend", BackendV4L2, "capture backend: v4l2 or mediadevices")
	fset.StringVar(&position, "position", "back", "camera position: back or front")
	fset.StringVar(&codes, "codes", "qr", "comma separated code types, or all")
	fset.IntVar(&cfg.FPS, "fps", 15, "capture frame rate")
	fset.IntVar(&cfg.Port, "port", 9999, "http port")
	fset.StringVar(&surf, "surface", "1280x720", "preview size, WxH")
	fset.StringVar(&focus, "focus", "", "rect of interest x,y,w,h in preview coordinates, centered square when empty")
	fset.StringVar(&cfg.PermissionFile, "permission-file", "", "file storing the camera access decision, device node check when empty")
	fset.StringVar(&cfg.Record, "record", "", "record the preview to this AVI file")
	fset.StringVar(&cfg.LogLevel, "log-level", "info", "debug, info, warn or error")
	fset.StringVar(&cfg.LogFormat, "log-format", "console", "console or json")
	fset.BoolVar(&cfg.AutoStart, "auto-start", true, "start scanning once set up")
	fset.BoolVar(&cfg.Simulator, "simulator", false, "run without a camera")
	fset.StringVar(&cfg.EnvFile, "env-file", ".env", "optional file with environment defaults")

	if err := fset.Parse(args); err != nil {
		return Config{}, err
	}

	if err := godotenv.Load(cfg.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", cfg.EnvFile, err)
	}
	set := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for name, env := range envNames {
		if set[name] {
			continue
		}
		v, ok := os.LookupEnv(env)
		if !ok {
			continue
		}
		if err := fset.Set(name, v); err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", env, err)
		}
	}

	var err error
	if cfg.Backend != BackendV4L2 && cfg.Backend != BackendMediaDevices {
		return Config{}, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if cfg.Position, err = types.ParsePosition(position); err != nil {
		return Config{}, err
	}
	if cfg.Codes, err = types.ParseCodeTypes(codes); err != nil {
		return Config{}, err
	}
	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	if cfg.FPS <= 0 {
		return Config{}, fmt.Errorf("invalid fps %d", cfg.FPS)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.Surface, err = ParseSize(surf); err != nil {
		return Config{}, err
	}
	if focus == "" {
		cfg.Focus = CenteredSquare(cfg.Surface, 0.5)
	} else if cfg.Focus, err = ParseRect(focus); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ParseSize parses "WxH".
func ParseSize(s string) (types.Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return types.Size{}, fmt.Errorf("invalid size %q, want WxH", s)
	}
	width, err1 := strconv.ParseFloat(w, 64)
	height, err2 := strconv.ParseFloat(h, 64)
	size := types.Size{Width: width, Height: height}
	if err1 != nil || err2 != nil || size.IsEmpty() {
		return types.Size{}, fmt.Errorf("invalid size %q, want WxH", s)
	}

	return size, nil
}

// ParseRect parses "x,y,w,h".
func ParseRect(s string) (types.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return types.Rect{}, fmt.Errorf("invalid rect %q, want x,y,w,h", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return types.Rect{}, fmt.Errorf("invalid rect %q: %w", s, err)
		}
		v[i] = f
	}
	r := types.R(v[0], v[1], v[2], v[3])
	if r.IsEmpty() {
		return types.Rect{}, fmt.Errorf("empty rect %q", s)
	}

	return r, nil
}

// CenteredSquare returns a square centered in size whose side is ratio of the shorter edge.
func CenteredSquare(size types.Size, ratio float64) types.Rect {
	side := min(size.Width, size.Height) * ratio
	return types.R((size.Width-side)/2, (size.Height-side)/2, side, side)
}
