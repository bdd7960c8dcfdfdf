package display

import (
	"image/color"

	"github.com/rcarmo/go-emote/internal/engine"
	"github.com/rcarmo/go-emote/internal/panel"
)

// Mode selects which of the top UI elements is visible. Exactly one is
// shown at a time.
type Mode int

const (
	ModeAnimTop Mode = iota
	ModeTime
	ModeTips
)

func (m Mode) String() string {
	switch m {
	case ModeAnimTop:
		return "anim-top"
	case ModeTime:
		return "time"
	case ModeTips:
		return "tips"
	}
	return "unknown"
}

// Icon is the status icon next to the top element.
type Icon int

const (
	IconNone Icon = iota
	IconMic
	IconBattery
	IconSpeaker
	IconWifiFailed
)

var iconGlyphs = map[Icon]string{
	IconMic:        "MIC",
	IconBattery:    "BAT",
	IconSpeaker:    "SPK",
	IconWifiFailed: "NET",
}

func (i Icon) String() string {
	switch i {
	case IconNone:
		return "none"
	case IconMic:
		return "mic"
	case IconBattery:
		return "battery"
	case IconSpeaker:
		return "speaker"
	case IconWifiFailed:
		return "wifi-failed"
	}
	return "unknown"
}

// Label names.
const (
	LabelAnim = "anim"
	LabelTime = "time"
	LabelTips = "tips"
	LabelIcon = "icon"
)

var modeLabels = map[Mode]string{
	ModeAnimTop: LabelAnim,
	ModeTime:    LabelTime,
	ModeTips:    LabelTips,
}

var white = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}

// topMid returns a w×h rectangle centred horizontally, offset dx from the
// centre and y from the top.
func topMid(screenW, dx, y, w, h int) panel.Rect {
	return panel.R((screenW-w)/2+dx, y, w, h)
}

// buildLabels lays out the status UI for a screen of the given width.
func buildLabels(ui *engine.UI, screenW int, mirror bool) {
	ui.AddLabel(engine.Label{Name: LabelAnim, Rect: topMid(screenW, 0, 25, 48, 16), Text: "((o))", Color: white})
	ui.AddLabel(engine.Label{Name: LabelTime, Rect: topMid(screenW, 0, 32, 140, 46), Color: white, Mirror: mirror})
	ui.AddLabel(engine.Label{Name: LabelTips, Rect: topMid(screenW, 0, 50, 140, 36), Color: white, Mirror: mirror})
	ui.AddLabel(engine.Label{Name: LabelIcon, Rect: topMid(screenW, -80, 38, 28, 16), Color: white})
}
