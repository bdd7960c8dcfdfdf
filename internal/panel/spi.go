package panel

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/rcarmo/go-emote/internal/codec"
)

// MIPI-DCS commands used by the SPI panel.
const (
	cmdSoftReset   = 0x01
	cmdSleepOut    = 0x11
	cmdDisplayOn   = 0x29
	cmdColumnAddr  = 0x2A
	cmdRowAddr     = 0x2B
	cmdMemoryWrite = 0x2C
	cmdMemAccess   = 0x36
	cmdPixelFormat = 0x3A

	pixelFormat16 = 0x55
)

// Conn is the part of spi.Conn the panel uses.
type Conn interface {
	Tx(w, r []byte) error
}

// Pin is the part of gpio.PinOut the panel uses.
type Pin interface {
	Out(l gpio.Level) error
}

// SPIConfig describes the panel wiring.
type SPIConfig struct {
	Width, Height    int
	XOffset, YOffset int
	// MemAccess is the MADCTL value (rotation and mirroring).
	MemAccess byte
	// SwapBytes sends the low byte of each pixel first.
	SwapBytes bool
	// ChunkSize bounds a single transfer. Defaults to 4096.
	ChunkSize int
}

// SPI drives a MIPI-DCS panel in RGB565 mode.
type SPI struct {
	mu    sync.Mutex
	conn  Conn
	dc    Pin
	rst   Pin
	cfg   SPIConfig
	buf   []byte
	sleep func(time.Duration)
}

// NewSPI returns a panel on conn. rst may be nil.
func NewSPI(conn Conn, dc, rst Pin, cfg SPIConfig) *SPI {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 4096
	}
	// Keep chunks pixel aligned.
	cfg.ChunkSize &^= 1
	return &SPI{conn: conn, dc: dc, rst: rst, cfg: cfg, sleep: time.Sleep}
}

// Init resets the controller and turns the display on.
func (s *SPI) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rst != nil {
		if err := s.rst.Out(gpio.Low); err != nil {
			return fmt.Errorf("panel reset: %w", err)
		}
		s.sleep(10 * time.Millisecond)
		if err := s.rst.Out(gpio.High); err != nil {
			return fmt.Errorf("panel reset: %w", err)
		}
		s.sleep(120 * time.Millisecond)
	}

	steps := []struct {
		cmd   byte
		data  []byte
		delay time.Duration
	}{
		{cmdSoftReset, nil, 150 * time.Millisecond},
		{cmdSleepOut, nil, 120 * time.Millisecond},
		{cmdPixelFormat, []byte{pixelFormat16}, 0},
		{cmdMemAccess, []byte{s.cfg.MemAccess}, 0},
		{cmdDisplayOn, nil, 20 * time.Millisecond},
	}
	for _, st := range steps {
		if err := s.command(st.cmd, st.data); err != nil {
			return fmt.Errorf("panel init 0x%02x: %w", st.cmd, err)
		}
		if st.delay > 0 {
			s.sleep(st.delay)
		}
	}
	return nil
}

func (s *SPI) command(cmd byte, data []byte) error {
	if err := s.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := s.conn.Tx([]byte{cmd}, nil); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := s.dc.Out(gpio.High); err != nil {
		return err
	}
	return s.conn.Tx(data, nil)
}

func addrRange(start, end int) []byte {
	return []byte{byte(start >> 8), byte(start), byte(end >> 8), byte(end)}
}

// DrawBitmap implements Panel.
func (s *SPI) DrawBitmap(x0, y0, x1, y1 int, pixels []uint16) error {
	r := Rect{x0, y0, x1, y1}
	if r.Empty() || x0 < 0 || y0 < 0 || x1 > s.cfg.Width || y1 > s.cfg.Height || len(pixels) < r.Dx()*r.Dy() {
		return fmt.Errorf("%w: %v with %d pixels", ErrOutOfBounds, r, len(pixels))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	xo, yo := s.cfg.XOffset, s.cfg.YOffset
	if err := s.command(cmdColumnAddr, addrRange(x0+xo, x1-1+xo)); err != nil {
		return err
	}
	if err := s.command(cmdRowAddr, addrRange(y0+yo, y1-1+yo)); err != nil {
		return err
	}
	if err := s.command(cmdMemoryWrite, nil); err != nil {
		return err
	}
	if err := s.dc.Out(gpio.High); err != nil {
		return err
	}

	pix := pixels[:r.Dx()*r.Dy()]
	perChunk := s.cfg.ChunkSize / 2
	if cap(s.buf) < s.cfg.ChunkSize {
		s.buf = make([]byte, s.cfg.ChunkSize)
	}
	for len(pix) > 0 {
		n := perChunk
		if n > len(pix) {
			n = len(pix)
		}
		written := codec.PutPixels(s.buf, pix[:n], !s.cfg.SwapBytes)
		if err := s.conn.Tx(s.buf[:written], nil); err != nil {
			return err
		}
		pix = pix[n:]
	}
	return nil
}
