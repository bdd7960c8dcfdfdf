package preview

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, path string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	return websocket.DefaultDialer.Dial(url, header)
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestEncodeFrame(t *testing.T) {
	msg := EncodeFrame(nil, []uint16{0x1234, 0xABCD}, 2, 1)
	assert.Equal(t, []byte{2, 0, 1, 0, 0x34, 0x12, 0xCD, 0xAB}, msg)

	w, h, err := DecodeFrameHeader(msg)
	require.NoError(t, err)
	assert.Equal(t, 2, w)
	assert.Equal(t, 1, h)

	_, _, err = DecodeFrameHeader(msg[:6])
	assert.Error(t, err)
	_, _, err = DecodeFrameHeader(msg[:3])
	assert.Error(t, err)

	// dst is reused when it is large enough
	buf := make([]byte, 0, 64)
	out := EncodeFrame(buf, []uint16{1, 2, 3, 4}, 2, 2)
	assert.Same(t, &buf[:1][0], &out[0])
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(Options{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c1, _, err := dial(t, srv, "", nil)
	require.NoError(t, err)
	defer c1.Close()
	c2, _, err := dial(t, srv, "", nil)
	require.NoError(t, err)
	defer c2.Close()
	waitClients(t, hub, 2)

	pix := []uint16{0xF800, 0x07E0, 0x001F, 0xFFFF}
	hub.Publish(pix, 2, 2)

	for _, c := range []*websocket.Conn{c1, c2} {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		typ, msg, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, typ)
		assert.Equal(t, EncodeFrame(nil, pix, 2, 2), msg)
	}

	st := hub.Stats()
	assert.Equal(t, uint64(1), st.Frames)
	assert.Equal(t, 2, st.Clients)
	require.Eventually(t, func() bool { return hub.Stats().Sent == 2 }, time.Second, 5*time.Millisecond)
}

func TestHubClientDisconnect(t *testing.T) {
	hub := NewHub(Options{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c, _, err := dial(t, srv, "", nil)
	require.NoError(t, err)
	waitClients(t, hub, 1)

	require.NoError(t, c.Close())
	waitClients(t, hub, 0)
}

func TestHubPublishWithoutClients(t *testing.T) {
	hub := NewHub(Options{})
	hub.Publish([]uint16{1}, 1, 1)
	hub.Publish([]uint16{1}, 2, 2) // short buffer is ignored
	assert.Equal(t, uint64(1), hub.Stats().Frames)
}

func TestHubDropsForSlowClients(t *testing.T) {
	hub := NewHub(Options{QueueDepth: 1})
	// A client that never drains its queue.
	c := &client{send: make(chan []byte, 1)}
	hub.clients[[16]byte{1}] = c

	for i := 0; i < 5; i++ {
		hub.Publish([]uint16{uint16(i)}, 1, 1)
	}
	assert.Len(t, c.send, 1)
	assert.Equal(t, uint64(4), hub.Stats().Dropped)
}

func TestHubMaxClients(t *testing.T) {
	hub := NewHub(Options{MaxClients: 1})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c, _, err := dial(t, srv, "", nil)
	require.NoError(t, err)
	defer c.Close()
	waitClients(t, hub, 1)

	_, resp, err := dial(t, srv, "", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHubClose(t *testing.T) {
	hub := NewHub(Options{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c, _, err := dial(t, srv, "", nil)
	require.NoError(t, err)
	defer c.Close()
	waitClients(t, hub, 1)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	_, resp, err := dial(t, srv, "", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestIsAllowedOrigin(t *testing.T) {
	hub := NewHub(Options{AllowedOrigins: []string{"https://robot.example", "panel.lan:8080"}})

	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{origin: "", host: "x", want: true},
		{origin: "http://localhost:3000", host: "x", want: true},
		{origin: "http://127.0.0.1:8080/", host: "x", want: true},
		{origin: "http://device:8080", host: "device:8080", want: true},
		{origin: "https://robot.example", host: "x", want: true},
		{origin: "http://panel.lan:8080", host: "x", want: true},
		{origin: "https://evil.example", host: "x", want: false},
		{origin: "http://[::1]:8080", host: "x", want: true},
		{origin: "http://localhost.evil.com", host: "x", want: false},
		{origin: "http://127.0.0.1.nip.io", host: "x", want: false},
		{origin: "http://localhost@evil.com", host: "x", want: false},
		{origin: "https://robot.example.evil.com", host: "x", want: false},
		{origin: "http://robot.example", host: "x", want: false},
		{origin: "http://panel.lan:9090", host: "x", want: false},
		{origin: "null", host: "x", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, hub.isAllowedOrigin(tt.origin, tt.host))
		})
	}
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub(Options{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	_, resp, err := dial(t, srv, "", http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer(t *testing.T) {
	static := fstest.MapFS{"index.html": {Data: []byte("<canvas id=screen></canvas>")}}
	hub := NewHub(Options{})
	srv := httptest.NewServer(NewServer("", hub, static, nil).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "canvas")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "connect-src 'self' ws: wss:")

	c, _, err := dial(t, srv, "/ws", nil)
	require.NoError(t, err)
	defer c.Close()
	waitClients(t, hub, 1)

	hub.Publish([]uint16{7}, 1, 1)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 1, 0, 7, 0}, msg)
}
