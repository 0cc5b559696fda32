package camera

import (
	"fmt"

	"github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/zap"

	"qrprocess-pi/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// V4L2 control IDs driven by the scanner.
const (
	CtrlExposureAuto          v4l2.CtrlID = 0x009a0901
	CtrlFocusAuto             v4l2.CtrlID = 0x009a090c
	CtrlAutoFocusRange        v4l2.CtrlID = 0x009a0912
	CtrlBacklightCompensation v4l2.CtrlID = 0x0098091c
	CtrlFlashLEDMode          v4l2.CtrlID = 0x009c0901
	CtrlCompressionQuality    v4l2.CtrlID = 0x009d0903
)

// menu values
const (
	exposureManual           v4l2.CtrlValue = 1
	exposureAperturePriority v4l2.CtrlValue = 3

	focusRangeAuto     v4l2.CtrlValue = 0
	focusRangeMacro    v4l2.CtrlValue = 2
	focusRangeInfinity v4l2.CtrlValue = 3

	flashNone  v4l2.CtrlValue = 0
	flashTorch v4l2.CtrlValue = 2
)

var knownCtrlIDs = []v4l2.CtrlID{
	CtrlExposureAuto,
	CtrlFocusAuto,
	CtrlAutoFocusRange,
	CtrlBacklightCompensation,
	CtrlFlashLEDMode,
	CtrlCompressionQuality,
}

// ControlInfo describes one device control.
type ControlInfo struct {
	ID        v4l2.CtrlID    `json:"id"`
	Name      string         `json:"name"`
	Value     v4l2.CtrlValue `json:"value"`
	IsMenu    bool           `json:"is_menu"`
	MenuItems []string       `json:"menu_items,omitempty"`
	Minimum   int32          `json:"minimum"`
	Maximum   int32          `json:"maximum"`
	Step      int32          `json:"step"`
	Default   int32          `json:"default"`
}

func ctrlToInfo(ctrl v4l2.Control) (ControlInfo, error) {
	info := ControlInfo{
		ID:      ctrl.ID,
		Name:    ctrl.Name,
		Value:   ctrl.Value,
		IsMenu:  ctrl.IsMenu(),
		Minimum: ctrl.Minimum,
		Maximum: ctrl.Maximum,
		Step:    ctrl.Step,
		Default: ctrl.Default,
	}
	if info.IsMenu {
		items, err := ctrl.GetMenuItems()
		if err != nil {
			return info, fmt.Errorf("menu items of control(%d): %w", ctrl.ID, err)
		}
		for _, item := range items {
			info.MenuItems = append(info.MenuItems, item.Name)
		}
	}

	return info, nil
}

func (i ControlInfo) String() string {
	return fmt.Sprintf("%s (%d)\t[min: %d; max: %d; step: %d; default: %d; current: %d]",
		i.Name, i.ID, i.Minimum, i.Maximum, i.Step, i.Default, i.Value)
}
