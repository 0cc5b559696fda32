package capture

// Preset selects the capture resolution of a session.
type Preset string

const (
	PresetHD1920x1080 Preset = "hd1920x1080"
	PresetHD1280x720  Preset = "hd1280x720"
	PresetVGA640x480  Preset = "vga640x480"
	// PresetHigh asks for the largest resolution the device offers.
	PresetHigh Preset = "high"
)

// ScanPresets is the preference order used when configuring a scanning input.
var ScanPresets = []Preset{PresetHD1920x1080, PresetHigh}

// Dimensions returns the fixed frame size of p, or 0,0 for presets resolved by the device.
func (p Preset) Dimensions() (width, height int) {
	switch p {
	case PresetHD1920x1080:
		return 1920, 1080
	case PresetHD1280x720:
		return 1280, 720
	case PresetVGA640x480:
		return 640, 480
	}
	return 0, 0
}

// BestPreset returns the first preset in order that d supports.
func BestPreset(d Device, order []Preset) (Preset, bool) {
	for _, p := range order {
		if d.SupportsPreset(p) {
			return p, true
		}
	}
	return "", false
}
