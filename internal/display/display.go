// Package display is the top-level controller. It owns every pipeline
// component and exposes the operations the rest of the device uses: pick an
// emotion, report a status, show a chat message.
package display

import (
	"context"
	"image/color"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rcarmo/go-emote/internal/assets"
	"github.com/rcarmo/go-emote/internal/compositor"
	"github.com/rcarmo/go-emote/internal/config"
	"github.com/rcarmo/go-emote/internal/engine"
	"github.com/rcarmo/go-emote/internal/logging"
	"github.com/rcarmo/go-emote/internal/memory"
	"github.com/rcarmo/go-emote/internal/panel"
	"github.com/rcarmo/go-emote/internal/playback"
	"github.com/rcarmo/go-emote/internal/scale"
	"github.com/rcarmo/go-emote/internal/sprite"
)

// Status names accepted by SetStatus.
const (
	StatusListening  = "listening"
	StatusStandby    = "standby"
	StatusSpeaking   = "speaking"
	StatusError      = "error"
	StatusConnecting = "connecting"
)

// AssetStore is an asset store that also resolves names.
type AssetStore interface {
	assets.Store
	Lookup(name string) (int, bool)
}

// Options wires a Controller. Config, Store and Panel are required.
type Options struct {
	Config *config.Config
	Store  AssetStore
	Panel  panel.Panel
	Logger *logging.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Stats aggregates the component counters.
type Stats struct {
	Emotion        string
	Mode           Mode
	Icon           Icon
	Phase          playback.Phase
	Playback       playback.Stats
	Compositor     compositor.Stats
	Sprites        sprite.Stats
	Frames         uint64
	ProtocolErrors uint64
	Heap           []memory.RegionStats
}

// Controller bundles the playback driver, the compositor, the display
// engine and the UI state.
type Controller struct {
	cfg   *config.Config
	store AssetStore
	log   *logging.Logger
	now   func() time.Time

	heap   *memory.Heap
	ring   *sprite.Ring
	state  *playback.State
	ui     *engine.UI
	comp   *compositor.Compositor
	engine *engine.Engine
	driver *playback.Driver

	mu      sync.Mutex
	mode    Mode
	icon    Icon
	emotion string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Controller. Nothing runs until Start.
func New(opts Options) (*Controller, error) {
	if opts.Config == nil || opts.Store == nil || opts.Panel == nil {
		return nil, errors.New("display: config, store and panel are required")
	}
	cfg := opts.Config
	filter, err := scale.ParseFilter(cfg.Sprite.Filter)
	if err != nil {
		return nil, errors.Wrap(err, "display")
	}
	r, g, b, err := cfg.BackgroundRGB()
	if err != nil {
		return nil, errors.Wrap(err, "display")
	}

	c := &Controller{
		cfg:   cfg,
		store: opts.Store,
		log:   opts.Logger,
		now:   opts.Now,
		heap:  memory.NewHeap(memory.DefaultRegions(cfg.Memory.InternalBytes, cfg.Memory.SPIRAMBytes)...),
		ring:  sprite.NewRing(),
		state: playback.NewState(-1, false, cfg.Playback.DefaultFPS),
		ui:    engine.NewUI(),
	}
	if c.log == nil {
		c.log = logging.Named("display")
	}
	if c.now == nil {
		c.now = time.Now
	}

	buildLabels(c.ui, cfg.Display.Width, cfg.Display.MirrorLabels)

	c.comp = compositor.New(compositor.Options{
		Config: compositor.Config{
			Width:          cfg.Display.Width,
			Height:         cfg.Display.Height,
			BlendThreshold: cfg.Sprite.BlendThreshold,
			MirrorLabels:   cfg.Display.MirrorLabels,
		},
		Panel:   opts.Panel,
		Sprites: c.ring,
		Labels:  c.ui,
		Heap:    c.heap,
		Logger:  c.log.Named("compositor"),
	})
	c.engine = engine.New(engine.Config{
		Width:      cfg.Display.Width,
		Height:     cfg.Display.Height,
		TileRows:   cfg.Display.TileRows,
		FPS:        cfg.Display.RefreshFPS,
		Background: color.RGBA{R: r, G: g, B: b, A: 0xFF},
	}, c.ui, c.comp.OnFlush, c.log.Named("engine"))
	c.driver = playback.NewDriver(playback.Options{
		Store: opts.Store,
		State: c.state,
		Ring:  c.ring,
		Layout: playback.Layout{
			ScreenWidth:  cfg.Display.Width,
			ScreenHeight: cfg.Display.Height,
			EyeWidth:     cfg.Sprite.EyeWidth,
			EyeHeight:    cfg.Sprite.EyeHeight,
			Gap:          cfg.Sprite.Gap,
			YOffset:      cfg.Sprite.YOffset,
		},
		Filter:         filter,
		Heap:           c.heap,
		MaxFramePixels: cfg.Memory.MaxFramePixels,
		IdlePoll:       cfg.Playback.IdlePoll,
		Logger:         c.log.Named("playback"),
	})

	c.setMode(ModeTime)
	c.SetEmotion(cfg.Playback.Emotion)
	return c, nil
}

// SetEmotion selects the animation for name. Unknown names play the idle
// animation. An emotion whose asset is missing from the store leaves the
// driver idle.
func (c *Controller) SetEmotion(name string) {
	e, known := playback.LookupEmotion(name)
	if !known {
		c.log.Debug("unknown emotion %q, using idle", name)
	}
	id, ok := c.store.Lookup(e.Asset)
	if !ok {
		c.log.Warn("emotion %q: asset %s not in store", name, e.Asset)
		id = -1
	}

	fps := e.FPS
	if fps <= 0 {
		fps = c.cfg.Playback.DefaultFPS
	}

	c.mu.Lock()
	c.emotion = name
	c.mu.Unlock()
	c.state.SetAsset(id, e.Repeat, fps)
}

// SetStatus switches the UI for a device status and shows the status text,
// except while connecting.
func (c *Controller) SetStatus(status string) {
	switch status {
	case StatusListening:
		c.setMode(ModeAnimTop)
		c.SetEmotion("happy")
		c.SetIcon(IconMic)
	case StatusStandby:
		c.setMode(ModeTime)
		c.SetIcon(IconBattery)
	case StatusSpeaking:
		c.setMode(ModeTips)
		c.SetIcon(IconSpeaker)
	case StatusError:
		c.setMode(ModeTips)
		c.SetIcon(IconWifiFailed)
	}

	if status != StatusConnecting {
		c.engine.Lock()
		c.ui.SetText(LabelTips, status)
		c.engine.Unlock()
	}
}

// SetChatMessage shows content in the tips label. Empty content is
// ignored and leaves the UI as it was.
func (c *Controller) SetChatMessage(role, content string) {
	if content == "" {
		return
	}
	c.log.Debug("chat message from %s", role)
	c.engine.Lock()
	c.ui.SetText(LabelTips, content)
	c.engine.Unlock()
	c.setMode(ModeTips)
}

// SetIcon changes the status icon.
func (c *Controller) SetIcon(icon Icon) {
	c.mu.Lock()
	c.icon = icon
	c.mu.Unlock()

	c.engine.Lock()
	c.ui.SetText(LabelIcon, iconGlyphs[icon])
	c.ui.SetVisible(LabelIcon, icon != IconNone)
	c.engine.Unlock()
}

func (c *Controller) setMode(m Mode) {
	c.mu.Lock()
	c.mode = m
	c.mu.Unlock()

	c.engine.Lock()
	for mode, name := range modeLabels {
		c.ui.SetVisible(name, mode == m)
	}
	c.engine.Unlock()
}

// Mode returns the visible UI element.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Icon returns the current status icon.
func (c *Controller) Icon() Icon {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.icon
}

// Selection returns what the playback driver has been asked to play.
func (c *Controller) Selection() playback.Selection {
	return c.state.Snapshot()
}

// UpdateClock refreshes the time label and shows it. It does nothing
// unless the battery icon is current.
func (c *Controller) UpdateClock() {
	if c.Icon() != IconBattery {
		return
	}
	c.engine.Lock()
	c.ui.SetText(LabelTime, c.now().UTC().Format("15:04"))
	c.engine.Unlock()
	c.setMode(ModeTime)
}

// RenderFrame renders and flushes one frame synchronously.
func (c *Controller) RenderFrame() error {
	return c.engine.RenderFrame()
}

// Start runs the playback driver, the display engine and the clock until
// ctx is done or Close is called.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return errors.New("display: already started")
	}
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(3)
	go func() {
		defer c.wg.Done()
		_ = c.driver.Run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		_ = c.engine.Run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.runClock(ctx)
	}()

	c.log.Info("display started: %dx%d, eyes %dx%d", c.cfg.Display.Width, c.cfg.Display.Height,
		c.cfg.Sprite.EyeWidth, c.cfg.Sprite.EyeHeight)
	return nil
}

func (c *Controller) runClock(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.UpdateClock()
		}
	}
}

// Close stops everything Start started and waits for it.
func (c *Controller) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	c.wg.Wait()
	c.log.Info("display stopped")
	return nil
}

// Stats returns a snapshot of every component's counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	emotion, mode, icon := c.emotion, c.mode, c.icon
	c.mu.Unlock()
	return Stats{
		Emotion:        emotion,
		Mode:           mode,
		Icon:           icon,
		Phase:          c.driver.Phase(),
		Playback:       c.driver.Stats(),
		Compositor:     c.comp.Stats(),
		Sprites:        c.ring.Stats(),
		Frames:         c.engine.Frames(),
		ProtocolErrors: c.engine.ProtocolErrors(),
		Heap:           c.heap.Stats(),
	}
}
