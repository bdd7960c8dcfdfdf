package playback

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rcarmo/go-emote/internal/assets"
	"github.com/rcarmo/go-emote/internal/codec"
	"github.com/rcarmo/go-emote/internal/codec/aaf"
	"github.com/rcarmo/go-emote/internal/logging"
	"github.com/rcarmo/go-emote/internal/memory"
	"github.com/rcarmo/go-emote/internal/scale"
	"github.com/rcarmo/go-emote/internal/sprite"
)

// DefaultIdlePoll is how long the driver waits between retries when it
// has nothing to play.
const DefaultIdlePoll = 50 * time.Millisecond

// Phase is the driver's state.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseDecoding
	PhasePresenting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDecoding:
		return "decoding"
	case PhasePresenting:
		return "presenting"
	}
	return "unknown"
}

// FrameEvent describes one published sprite frame.
type FrameEvent struct {
	AssetID    int
	Index      int
	Frames     int
	Generation uint64
	Width      int
	Height     int
}

// Options configures a Driver. Store, State and Ring are required.
type Options struct {
	Store  assets.Store
	State  *State
	Ring   *sprite.Ring
	Layout Layout
	Filter scale.Filter
	Heap   *memory.Heap
	JPEG   codec.JPEGDecoder
	// MaxFramePixels rejects source frames larger than this. Zero means
	// aaf.MaxFramePixels.
	MaxFramePixels int
	// IdlePoll defaults to DefaultIdlePoll.
	IdlePoll time.Duration
	Logger   *logging.Logger
	// OnFrame runs on the driver goroutine after each publish.
	OnFrame func(FrameEvent)
	// Sleep replaces the pacing wait. It must return ctx.Err() once ctx is
	// done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Stats counts driver activity.
type Stats struct {
	Published     uint64
	Opened        uint64
	OpenErrors    uint64
	FrameErrors   uint64
	AllocErrors   uint64
	Abandoned     uint64
	IdleEntries   uint64
	BlockErrors   uint64
	DecodedFrames uint64
}

// Driver is the playback loop. Run it on its own goroutine.
type Driver struct {
	store    assets.Store
	state    *State
	ring     *sprite.Ring
	layout   Layout
	place    []sprite.Placement
	idlePoll time.Duration
	log      *logging.Logger
	onFrame  func(FrameEvent)
	sleep    func(ctx context.Context, d time.Duration) error

	decoder *aaf.Decoder
	scaler  *scale.Scaler

	phase       atomic.Int32
	published   atomic.Uint64
	opened      atomic.Uint64
	openErrors  atomic.Uint64
	frameErrors atomic.Uint64
	allocErrors atomic.Uint64
	abandoned   atomic.Uint64
	idleEntries atomic.Uint64
}

// NewDriver returns a Driver.
func NewDriver(opts Options) *Driver {
	d := &Driver{
		store:    opts.Store,
		state:    opts.State,
		ring:     opts.Ring,
		layout:   opts.Layout,
		place:    opts.Layout.Placements(),
		idlePoll: opts.IdlePoll,
		log:      opts.Logger,
		onFrame:  opts.OnFrame,
		sleep:    opts.Sleep,
		scaler:   scale.NewScaler(opts.Filter, opts.Heap),
	}
	if d.idlePoll <= 0 {
		d.idlePoll = DefaultIdlePoll
	}
	if d.log == nil {
		d.log = logging.Named("playback")
	}
	if d.sleep == nil {
		d.sleep = sleepContext
	}
	d.decoder = aaf.NewDecoder(aaf.DecoderOptions{
		Heap:      opts.Heap,
		JPEG:      opts.JPEG,
		Logger:    d.log.Named("aaf"),
		MaxPixels: opts.MaxFramePixels,
	})
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FrameInterval is the pause between frames at fps, which is clamped to 1.
func FrameInterval(fps int) time.Duration {
	return time.Second / time.Duration(max(fps, 1))
}

// Phase returns the current state.
func (d *Driver) Phase() Phase {
	return Phase(d.phase.Load())
}

func (d *Driver) setPhase(p Phase) {
	if Phase(d.phase.Swap(int32(p))) != PhaseIdle && p == PhaseIdle {
		d.idleEntries.Add(1)
	}
}

// Stats returns a snapshot of the counters.
func (d *Driver) Stats() Stats {
	ds := d.decoder.Stats()
	return Stats{
		Published:     d.published.Load(),
		Opened:        d.opened.Load(),
		OpenErrors:    d.openErrors.Load(),
		FrameErrors:   d.frameErrors.Load(),
		AllocErrors:   d.allocErrors.Load(),
		Abandoned:     d.abandoned.Load(),
		IdleEntries:   d.idleEntries.Load(),
		BlockErrors:   ds.BlockErrors,
		DecodedFrames: ds.Frames,
	}
}

// cursor is the driver's position in the current asset.
type cursor struct {
	attempted bool
	assetID   int
	gen       uint64
	format    *aaf.Format
	// retry is set when an open failure may clear up by itself, such as an
	// asset that is not in the store yet.
	retry   bool
	index   int
	holding bool
}

func (c *cursor) restart() {
	c.index = 0
	c.holding = false
}

// Run plays until ctx is done and returns ctx.Err().
func (d *Driver) Run(ctx context.Context) error {
	d.log.Info("playback started, eyes %dx%d at %v", d.layout.EyeWidth, d.layout.EyeHeight, d.place)
	defer d.log.Info("playback stopped")

	var c cursor
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		sel := d.state.Snapshot()
		switch {
		case !c.attempted || sel.AssetID != c.assetID:
			d.open(&c, sel)
		case sel.Generation != c.gen:
			c.gen = sel.Generation
			c.restart()
			if c.format == nil {
				d.open(&c, sel)
			}
		}

		if c.format == nil {
			d.setPhase(PhaseIdle)
			if err := d.sleep(ctx, d.idlePoll); err != nil {
				return err
			}
			if c.retry {
				c.attempted = false
			}
			continue
		}

		if c.holding {
			if err := d.sleep(ctx, d.idlePoll); err != nil {
				return err
			}
			continue
		}

		if !d.present(&c, sel) {
			if err := d.sleep(ctx, d.idlePoll); err != nil {
				return err
			}
			continue
		}

		if err := d.sleep(ctx, FrameInterval(sel.FPS)); err != nil {
			return err
		}

		if c.index < c.format.FrameCount()-1 {
			c.index++
		} else if sel.Repeat {
			c.index = 0
		} else {
			c.holding = true
		}
	}
}

// open replaces the cursor's asset with sel's. Failures leave the cursor
// without a format, which is the idle state.
func (d *Driver) open(c *cursor, sel Selection) {
	if c.attempted && c.assetID != sel.AssetID {
		d.log.Debug("asset %d -> %d", c.assetID, sel.AssetID)
	}
	*c = cursor{attempted: true, assetID: sel.AssetID, gen: sel.Generation}

	data, err := d.store.Asset(sel.AssetID)
	if err == nil {
		c.format, err = aaf.NewFormat(data)
	}
	if err == nil {
		err = c.format.Verify()
	}
	if err == nil && c.format.FrameCount() == 0 {
		err = &aaf.FormatError{Frame: -1, Err: aaf.ErrBadHeader, Detail: "no frames"}
	}
	if err != nil {
		c.format = nil
		// A missing asset may be added later; a malformed one stays
		// malformed until something else is selected.
		c.retry = errors.Is(err, aaf.ErrNotFound)
		d.openErrors.Add(1)
		if d.Phase() == PhaseIdle {
			d.log.Debug("asset %d unavailable: %v", sel.AssetID, err)
		} else {
			d.log.Warn("asset %d unavailable: %v", sel.AssetID, err)
		}
		return
	}
	d.opened.Add(1)
	d.log.Debug("asset %d: %d frames", sel.AssetID, c.format.FrameCount())
}

// present decodes, scales and publishes the cursor's frame. It returns
// false when nothing was published.
func (d *Driver) present(c *cursor, sel Selection) bool {
	d.setPhase(PhaseDecoding)

	data, err := c.format.Frame(c.index)
	if err != nil {
		d.dropAsset(c, err)
		return false
	}
	frame, err := d.decoder.DecodeFrame(data)
	if err != nil {
		var fe *aaf.FormatError
		if errors.As(err, &fe) {
			if fe.Frame < 0 {
				fe.Frame = c.index
			}
			d.dropAsset(c, err)
			return false
		}
		d.allocErrors.Add(1)
		d.log.Debug("frame %d skipped: %v", c.index, err)
		return false
	}

	// A new selection made while decoding wins; the old frame is dropped.
	if d.state.generation() != sel.Generation {
		d.abandoned.Add(1)
		return false
	}

	l := d.layout
	pix, err := d.scaler.Scale(frame.Pix, frame.Width, frame.Height, l.EyeWidth, l.EyeHeight)
	if err != nil {
		d.allocErrors.Add(1)
		d.log.Debug("frame %d not scaled: %v", c.index, err)
		return false
	}

	d.ring.Publish(l.EyeWidth, l.EyeHeight, pix, d.place, c.assetID, c.index)
	d.published.Add(1)
	d.setPhase(PhasePresenting)

	if d.onFrame != nil {
		d.onFrame(FrameEvent{
			AssetID:    c.assetID,
			Index:      c.index,
			Frames:     c.format.FrameCount(),
			Generation: sel.Generation,
			Width:      l.EyeWidth,
			Height:     l.EyeHeight,
		})
	}
	return true
}

func (d *Driver) dropAsset(c *cursor, err error) {
	d.frameErrors.Add(1)
	d.log.Warn("asset %d dropped at frame %d: %v", c.assetID, c.index, err)
	c.format = nil
	c.retry = false
}
