package types

import (
	"fmt"
	"strings"
	"time"
)

type CameraPosition int

const (
	PositionUnspecified CameraPosition = iota
	PositionBack
	PositionFront
)

func (p CameraPosition) String() string {
	switch p {
	case PositionBack:
		return "back"
	case PositionFront:
		return "front"
	default:
		return "unspecified"
	}
}

func ParsePosition(s string) (CameraPosition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "back", "":
		return PositionBack, nil
	case "front":
		return PositionFront, nil
	}
	return PositionUnspecified, fmt.Errorf("unknown camera position %q", s)
}

// CodeType identifies a machine-readable symbology.
type CodeType string

const (
	CodeAztec           CodeType = "aztec"
	CodeCode128         CodeType = "code128"
	CodeCode39          CodeType = "code39"
	CodeCode39Mod43     CodeType = "code39Mod43"
	CodeCode93          CodeType = "code93"
	CodeDataMatrix      CodeType = "dataMatrix"
	CodeEAN13           CodeType = "ean13"
	CodeEAN8            CodeType = "ean8"
	CodeInterleaved2of5 CodeType = "interleaved2of5"
	CodeITF14           CodeType = "itf14"
	CodePDF417          CodeType = "pdf417"
	CodeQR              CodeType = "qr"
	CodeUPCE            CodeType = "upce"
)

var AllCodeTypes = []CodeType{
	CodeAztec,
	CodeCode128,
	CodeCode39,
	CodeCode39Mod43,
	CodeCode93,
	CodeDataMatrix,
	CodeEAN13,
	CodeEAN8,
	CodeInterleaved2of5,
	CodeITF14,
	CodePDF417,
	CodeQR,
	CodeUPCE,
}

func (c CodeType) Valid() bool {
	for _, t := range AllCodeTypes {
		if t == c {
			return true
		}
	}
	return false
}

// ParseCodeTypes parses a comma separated symbology list. "all" selects every known type.
// Order is kept and duplicates are dropped.
func ParseCodeTypes(s string) ([]CodeType, error) {
	if strings.TrimSpace(s) == "all" {
		return append([]CodeType(nil), AllCodeTypes...), nil
	}
	var res []CodeType
	seen := make(map[CodeType]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, ok := lookupCodeType(part)
		if !ok {
			return nil, fmt.Errorf("unknown code type %q", part)
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		res = append(res, t)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("no code types in %q", s)
	}

	return res, nil
}

func lookupCodeType(s string) (CodeType, bool) {
	for _, t := range AllCodeTypes {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return "", false
}

// Time is a media presentation timestamp: Value ticks of 1/Timescale seconds.
type Time struct {
	Value     int64 `json:"value"`
	Timescale int32 `json:"timescale"`
}

const NanosecondTimescale = int32(time.Second)

func NewTime(d time.Duration) Time {
	return Time{Value: int64(d), Timescale: NanosecondTimescale}
}

// Seconds truncates the timestamp to whole seconds. An invalid timescale yields 0.
func (t Time) Seconds() int64 {
	if t.Timescale <= 0 {
		return 0
	}
	return t.Value / int64(t.Timescale)
}

func (t Time) IsValid() bool {
	return t.Timescale > 0
}

// ScanEvent is produced once per decoded object per frame.
type ScanEvent struct {
	Code      string   `json:"code"`
	Type      CodeType `json:"type"`
	Timestamp int64    `json:"timestamp"`
}
