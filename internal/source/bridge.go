// Package source delivers the inbound message stream. Messages arrive over a
// WebSocket bridge as JSON frames; the bridge client decodes them and hands
// them to the engine, reconnecting for as long as the context lives.
package source

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"goldbot/internal/domain"
)

// Handler consumes one decoded message. Errors are logged, not fatal: a
// failing message must not stall the stream.
type Handler func(ctx context.Context, msg domain.Message) error

// frame is the wire format of one bridge message.
type frame struct {
	ID      int64  `json:"id"`
	Text    string `json:"text"`
	ReplyTo *int64 `json:"reply_to,omitempty"`
	Date    int64  `json:"date"` // Unix seconds
	Edit    bool   `json:"edit"`
}

// Bridge is a reconnecting WebSocket client for the message stream.
type Bridge struct {
	url       string
	reconnect time.Duration
	handler   Handler
	log       *slog.Logger
}

// NewBridge creates a Bridge that dials url and delivers every frame to
// handler, waiting reconnect between connection attempts.
func NewBridge(url string, reconnect time.Duration, handler Handler, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		url:       url,
		reconnect: reconnect,
		handler:   handler,
		log:       log.With("component", "bridge"),
	}
}

// Run connects and consumes frames until ctx is cancelled. Connection
// failures and dropped connections trigger a redial after the reconnect
// delay.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		if err := b.consume(ctx); err != nil {
			b.log.Warn("bridge connection lost", "url", b.url, "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.reconnect):
		}
	}
}

// consume runs one connection: dial, then read frames until it breaks.
func (b *Bridge) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	b.log.Info("bridge connected", "url", b.url)

	// Unblock ReadMessage when the context dies.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		b.dispatch(ctx, data)
	}
}

// dispatch decodes one frame and hands it to the handler.
func (b *Bridge) dispatch(ctx context.Context, data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		b.log.Warn("undecodable frame dropped", "err", err)
		return
	}
	if f.ID == 0 {
		b.log.Warn("frame without message id dropped")
		return
	}

	msg := domain.Message{
		ID:      f.ID,
		Text:    f.Text,
		ReplyTo: f.ReplyTo,
		Time:    time.Unix(f.Date, 0).UTC(),
		Edited:  f.Edit,
	}
	if msg.Time.Unix() <= 0 {
		msg.Time = time.Now().UTC()
	}

	if err := b.handler(ctx, msg); err != nil {
		b.log.Error("message handling failed", "msg_id", msg.ID, "err", err)
	}
}
