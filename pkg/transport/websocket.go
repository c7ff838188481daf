package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicewire/voicewire/pkg/core"
)

const defaultRealtimeWSURL = "wss://api.openai.com/v1/realtime"

// WebSocketNegotiator dials the realtime API over a WebSocket. Audio,
// when used, travels inline as base64 input_audio_buffer events rather
// than on media tracks.
type WebSocketNegotiator struct {
	// URL overrides the realtime endpoint. Tests point this at a
	// local httptest server ("ws://...").
	URL string

	Model string

	Dialer *websocket.Dialer
	Logger *slog.Logger
}

// Open dials the endpoint and starts the read pump. The connection is
// usable for Send as soon as Open returns.
func (n *WebSocketNegotiator) Open(ctx context.Context, credential string) (Connection, error) {
	url := n.URL
	if url == "" {
		url = defaultRealtimeWSURL
	}
	if n.Model != "" {
		url += "?model=" + n.Model
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := n.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, core.NewSignalingError("dial realtime websocket", err)
	}

	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &wsConn{
		ws:       ws,
		messages: make(chan []byte, 256),
		media:    closedMediaChan(),
		logger:   logger,
	}
	go c.readLoop()
	return c, nil
}

func closedMediaChan() chan MediaInfo {
	ch := make(chan MediaInfo)
	close(ch)
	return ch
}

type wsConn struct {
	ws       *websocket.Conn
	messages chan []byte
	media    chan MediaInfo
	logger   *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool
}

func (c *wsConn) readLoop() {
	defer close(c.messages)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.writeMu.Lock()
			closed := c.closed
			c.writeMu.Unlock()
			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		c.messages <- data
	}
}

func (c *wsConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return &core.Error{Kind: core.ErrChannelNotOpen, Message: "websocket is closed"}
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write websocket message: %w", err)
	}
	return nil
}

func (c *wsConn) Messages() <-chan []byte { return c.messages }

func (c *wsConn) RemoteMedia() <-chan MediaInfo { return c.media }

func (c *wsConn) Info() MediaInfo {
	return MediaInfo{Codec: "audio/pcm16", SampleRate: 24000, Channels: 1}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
