package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/voicewire/voicewire/pkg/core"
)

const defaultSignalingURL = "https://api.openai.com/v1/realtime"

// WebRTCNegotiator opens a peer connection to the realtime API. Audio
// is exchanged on Opus media tracks; JSON events ride a data channel
// labeled "oai-events". SDP offer/answer goes over plain HTTPS.
type WebRTCNegotiator struct {
	// SignalingURL overrides the SDP exchange endpoint. Tests point
	// this at a local server.
	SignalingURL string

	Model string

	// DataChannelLabel defaults to "oai-events".
	DataChannelLabel string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (n *WebRTCNegotiator) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

// Open negotiates a peer connection and blocks until the data channel
// is either open or the context is done. The returned connection owns
// the peer connection and its tracks.
func (n *WebRTCNegotiator) Open(ctx context.Context, credential string) (Connection, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, core.NewSignalingError("create peer connection", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "microphone",
	)
	if err != nil {
		pc.Close()
		return nil, core.NewSignalingError("create audio track", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return nil, core.NewSignalingError("add audio track", err)
	}

	label := n.DataChannelLabel
	if label == "" {
		label = "oai-events"
	}
	ordered := true
	dc, err := pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, core.NewSignalingError("create data channel", err)
	}

	conn := newWebRTCConn(pc, dc, track, n.logger())

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, core.NewSignalingError("create offer", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, core.NewSignalingError("set local description", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		pc.Close()
		return nil, core.NewSignalingError("ice gathering", ctx.Err())
	}

	answer, err := n.exchangeSDP(ctx, credential, pc.LocalDescription().SDP)
	if err != nil {
		pc.Close()
		return nil, err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		pc.Close()
		return nil, core.NewSignalingError("set remote description", err)
	}

	select {
	case <-conn.opened:
	case <-ctx.Done():
		pc.Close()
		return nil, core.NewSignalingError("wait for data channel", ctx.Err())
	}

	return conn, nil
}

// exchangeSDP posts the local offer and returns the remote answer.
func (n *WebRTCNegotiator) exchangeSDP(ctx context.Context, credential, offer string) (string, error) {
	url := n.SignalingURL
	if url == "" {
		url = defaultSignalingURL
	}
	if n.Model != "" {
		url += "?model=" + n.Model
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(offer))
	if err != nil {
		return "", core.NewSignalingError("build sdp request", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+credential)

	client := n.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", core.NewSignalingError("post sdp offer", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", core.NewSignalingError("read sdp answer", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", core.NewSignalingError(fmt.Sprintf("signaling endpoint returned %d: %s", resp.StatusCode, body), nil)
	}
	return string(body), nil
}

type webrtcConn struct {
	pc    *webrtc.PeerConnection
	dc    *webrtc.DataChannel
	track *webrtc.TrackLocalStaticSample

	opened chan struct{}
	open   atomic.Bool
	media  chan MediaInfo

	// recvMu orders message delivery against channel close. Pion
	// invokes OnMessage on its own read goroutine, so Close must not
	// close the channel while a delivery is in flight.
	recvMu   sync.Mutex
	closed   bool
	messages chan []byte

	logger *slog.Logger
}

func newWebRTCConn(pc *webrtc.PeerConnection, dc *webrtc.DataChannel, track *webrtc.TrackLocalStaticSample, logger *slog.Logger) *webrtcConn {
	c := &webrtcConn{
		pc:       pc,
		dc:       dc,
		track:    track,
		opened:   make(chan struct{}),
		messages: make(chan []byte, 256),
		media:    make(chan MediaInfo, 1),
		logger:   logger,
	}

	dc.OnOpen(func() {
		c.open.Store(true)
		close(c.opened)
	})
	dc.OnClose(func() {
		c.open.Store(false)
		c.closeMessages()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		data := make([]byte, len(msg.Data))
		copy(data, msg.Data)
		c.deliver(data)
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		codec := remote.Codec()
		info := MediaInfo{
			Codec:      codec.MimeType,
			SampleRate: int(codec.ClockRate),
			Channels:   int(codec.Channels),
		}
		select {
		case c.media <- info:
		default:
		}
	})

	return c
}

// deliver hands one inbound frame to the consumer. Frames arriving
// after close are dropped silently.
func (c *webrtcConn) deliver(data []byte) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.messages <- data:
	default:
		c.logger.Warn("dropping server event, consumer too slow", "bytes", len(data))
	}
}

func (c *webrtcConn) closeMessages() {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.messages)
}

func (c *webrtcConn) Send(data []byte) error {
	if !c.open.Load() {
		return &core.Error{Kind: core.ErrChannelNotOpen, Message: "data channel is not open"}
	}
	if err := c.dc.SendText(string(data)); err != nil {
		return fmt.Errorf("send on data channel: %w", err)
	}
	return nil
}

func (c *webrtcConn) Messages() <-chan []byte { return c.messages }

func (c *webrtcConn) RemoteMedia() <-chan MediaInfo { return c.media }

func (c *webrtcConn) Info() MediaInfo {
	return MediaInfo{Codec: webrtc.MimeTypeOpus, SampleRate: 48000, Channels: 2}
}

func (c *webrtcConn) Close() error {
	c.open.Store(false)
	err := c.pc.Close()
	c.closeMessages()
	return err
}
