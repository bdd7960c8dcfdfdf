// Package preview streams composed panel frames to browsers over
// websockets.
package preview

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rcarmo/go-emote/internal/codec"
	"github.com/rcarmo/go-emote/internal/logging"
)

const (
	webSocketReadBufferSize  = 1024
	webSocketWriteBufferSize = 8192 * 2

	// FrameHeaderSize is the u16 width and u16 height before the pixels.
	FrameHeaderSize = 4

	defaultQueueDepth = 2
	writeWait         = 5 * time.Second
)

var ErrTooManyClients = errors.New("preview: too many clients")

// Options configures a Hub.
type Options struct {
	// AllowedOrigins lists extra origins besides localhost.
	AllowedOrigins []string
	// MaxClients <= 0 means unlimited.
	MaxClients int
	// QueueDepth is the number of frames buffered per client before new
	// frames are dropped for it. Defaults to 2.
	QueueDepth int
	Logger     *logging.Logger
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Hub fans frames out to websocket subscribers. Slow subscribers lose
// frames instead of stalling the publisher.
type Hub struct {
	mu      sync.Mutex
	clients map[uuid.UUID]*client
	closed  bool

	upgrader   websocket.Upgrader
	allowed    []string
	maxClients int
	queueDepth int
	log        *logging.Logger

	frames  atomic.Uint64
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewHub returns an empty Hub.
func NewHub(opts Options) *Hub {
	h := &Hub{
		clients:    make(map[uuid.UUID]*client),
		allowed:    opts.AllowedOrigins,
		maxClients: opts.MaxClients,
		queueDepth: opts.QueueDepth,
		log:        opts.Logger,
	}
	if h.queueDepth <= 0 {
		h.queueDepth = defaultQueueDepth
	}
	if h.log == nil {
		h.log = logging.Named("preview")
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  webSocketReadBufferSize,
		WriteBufferSize: webSocketWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return h.isAllowedOrigin(r.Header.Get("Origin"), r.Host)
		},
	}
	return h
}

// EncodeFrame appends the wire form of a frame to dst: u16 width, u16
// height, then width*height RGB565 pixels, all little-endian.
func EncodeFrame(dst []byte, pix []uint16, width, height int) []byte {
	n := FrameHeaderSize + 2*width*height
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	binary.LittleEndian.PutUint16(dst, uint16(width))
	binary.LittleEndian.PutUint16(dst[2:], uint16(height))
	codec.PutPixels(dst[FrameHeaderSize:], pix[:width*height], false)
	return dst
}

// DecodeFrameHeader reads the geometry from an encoded frame.
func DecodeFrameHeader(msg []byte) (width, height int, err error) {
	if len(msg) < FrameHeaderSize {
		return 0, 0, fmt.Errorf("preview: frame is %d bytes", len(msg))
	}
	width = int(binary.LittleEndian.Uint16(msg))
	height = int(binary.LittleEndian.Uint16(msg[2:]))
	if len(msg) != FrameHeaderSize+2*width*height {
		return 0, 0, fmt.Errorf("preview: %dx%d frame is %d bytes", width, height, len(msg))
	}
	return width, height, nil
}

// Publish sends a frame to every subscriber. Its signature matches
// panel.Framebuffer.OnFrame.
func (h *Hub) Publish(pix []uint16, width, height int) {
	if len(pix) < width*height {
		return
	}
	h.frames.Add(1)

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}
	msg := EncodeFrame(nil, pix, width, height)
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// ServeHTTP upgrades the request and subscribes the connection until it
// closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	full := h.closed || (h.maxClients > 0 && len(h.clients) >= h.maxClients)
	h.mu.Unlock()
	if full {
		http.Error(w, ErrTooManyClients.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade websocket: %v", err)
		return
	}

	c := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, h.queueDepth),
		done: make(chan struct{}),
	}
	if !h.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ErrTooManyClients.Error()),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.log.Info("client %s connected from %s", c.id, r.RemoteAddr)

	go h.readLoop(c)
	h.writeLoop(c)

	h.remove(c.id)
	if err := conn.Close(); err != nil {
		h.log.Debug("close websocket %s: %v", c.id, err)
	}
	h.log.Info("client %s disconnected", c.id)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || (h.maxClients > 0 && len(h.clients) >= h.maxClients) {
		return false
	}
	h.clients[c.id] = c
	return true
}

func (h *Hub) remove(id uuid.UUID) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// readLoop discards client messages and signals when the peer goes away.
func (h *Hub) readLoop(c *client) {
	defer close(c.done)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					h.log.Debug("send to %s: %v", c.id, err)
				}
				return
			}
			h.sent.Add(1)
		}
	}
}

// Clients returns the number of subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

// Stats counts hub activity.
type Stats struct {
	Frames  uint64
	Sent    uint64
	Dropped uint64
	Clients int
}

// Stats returns a snapshot of the counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Frames:  h.frames.Load(),
		Sent:    h.sent.Load(),
		Dropped: h.dropped.Load(),
		Clients: h.Clients(),
	}
}

// isAllowedOrigin accepts same-host and loopback origins plus the
// configured list. Requests without an Origin header are not browsers and
// are accepted.
func (h *Hub) isAllowedOrigin(origin, host string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(strings.TrimSuffix(origin, "/"))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}

	if u.Host == host {
		return true
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}

	for _, entry := range h.allowed {
		candidate := strings.TrimSuffix(strings.TrimSpace(entry), "/")
		if candidate == "" {
			continue
		}
		if strings.Contains(candidate, "://") {
			if candidate == u.Scheme+"://"+u.Host {
				return true
			}
			continue
		}
		if candidate == u.Host {
			return true
		}
	}

	return false
}
