package engine

import (
	"image/color"
	"sync"

	"github.com/rcarmo/go-emote/internal/panel"
)

// Label is a text overlay drawn by the engine.
type Label struct {
	Name    string
	Rect    panel.Rect
	Text    string
	Color   color.RGBA
	Visible bool
	// Mirror marks the region for horizontal mirroring at stream out.
	Mirror bool
}

// UI holds the label set. It is safe for concurrent use and serves as the
// compositor's label source.
type UI struct {
	mu     sync.RWMutex
	labels []*Label
	byName map[string]*Label
}

// NewUI returns an empty label set.
func NewUI() *UI {
	return &UI{byName: make(map[string]*Label)}
}

// AddLabel adds or replaces a label. Labels draw in insertion order.
func (u *UI) AddLabel(l Label) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if old, ok := u.byName[l.Name]; ok {
		*old = l
		return
	}
	nl := l
	u.labels = append(u.labels, &nl)
	u.byName[l.Name] = &nl
}

// SetText updates a label's text. Unknown names are ignored.
func (u *UI) SetText(name, text string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if l, ok := u.byName[name]; ok {
		l.Text = text
	}
}

// SetVisible shows or hides a label.
func (u *UI) SetVisible(name string, visible bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if l, ok := u.byName[name]; ok {
		l.Visible = visible
	}
}

// Label returns a copy of the named label.
func (u *UI) Label(name string) (Label, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if l, ok := u.byName[name]; ok {
		return *l, true
	}
	return Label{}, false
}

// Labels returns copies of every label in draw order.
func (u *UI) Labels() []Label {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]Label, len(u.labels))
	for i, l := range u.labels {
		out[i] = *l
	}
	return out
}

// ExclusionRects appends the rectangles of visible labels.
func (u *UI) ExclusionRects(dst []panel.Rect) []panel.Rect {
	u.mu.RLock()
	defer u.mu.RUnlock()
	for _, l := range u.labels {
		if l.Visible {
			dst = append(dst, l.Rect)
		}
	}
	return dst
}

// MirrorRects appends the rectangles of visible mirrored labels.
func (u *UI) MirrorRects(dst []panel.Rect) []panel.Rect {
	u.mu.RLock()
	defer u.mu.RUnlock()
	for _, l := range u.labels {
		if l.Visible && l.Mirror {
			dst = append(dst, l.Rect)
		}
	}
	return dst
}
