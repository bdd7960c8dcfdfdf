// Package playback runs the animation loop: it walks the selected asset's
// frames at the selected rate, decodes and scales each one and publishes it
// to the sprite ring the compositor reads.
package playback

import (
	"sync"

	"github.com/rcarmo/go-emote/internal/sprite"
)

// Selection is what the driver should be playing.
type Selection struct {
	AssetID int
	Repeat  bool
	FPS     int
	// Generation increases on every SetAsset, including re-selecting the
	// same asset.
	Generation uint64
}

// State holds the current Selection. Writers call SetAsset from any
// goroutine; the driver reads it once per frame.
type State struct {
	mu  sync.Mutex
	sel Selection
}

// NewState returns a State with an initial selection.
func NewState(assetID int, repeat bool, fps int) *State {
	return &State{sel: Selection{AssetID: assetID, Repeat: repeat, FPS: fps}}
}

// SetAsset changes the selection. It takes effect at the driver's next
// frame boundary.
func (s *State) SetAsset(assetID int, repeat bool, fps int) {
	s.mu.Lock()
	s.sel.AssetID = assetID
	s.sel.Repeat = repeat
	s.sel.FPS = fps
	s.sel.Generation++
	s.mu.Unlock()
}

// Snapshot returns the current selection.
func (s *State) Snapshot() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel
}

func (s *State) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel.Generation
}

// Layout places two eyes of EyeWidth x EyeHeight side by side, Gap apart,
// centred on a ScreenWidth x ScreenHeight display. The right eye is drawn
// mirrored.
type Layout struct {
	ScreenWidth  int
	ScreenHeight int
	EyeWidth     int
	EyeHeight    int
	Gap          int
	YOffset      int
}

// Placements returns the left and right eye positions.
func (l Layout) Placements() []sprite.Placement {
	total := 2*l.EyeWidth + l.Gap
	left := max(0, (l.ScreenWidth-total)/2)
	right := min(l.ScreenWidth-l.EyeWidth, left+l.EyeWidth+l.Gap)
	y := max(0, (l.ScreenHeight-l.EyeHeight)/2) + l.YOffset
	return []sprite.Placement{
		{X: left, Y: y},
		{X: right, Y: y, Mirror: true},
	}
}
