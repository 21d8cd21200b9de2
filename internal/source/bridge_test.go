package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"goldbot/internal/domain"
)

var upgrader = websocket.Upgrader{}

// serveFrames starts a test bridge server sending the given frames on each
// connection, then holding the connection open.
func serveFrames(t *testing.T, frames ...string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func receive(t *testing.T, ch <-chan domain.Message) domain.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return domain.Message{}
	}
}

func TestBridgeDeliversFrames(t *testing.T) {
	url := serveFrames(t,
		`{"id": 1001, "text": "XAUUSD BUY @ 4910", "date": 1767000000}`,
		`{"id": 1002, "text": "mover el sl a 4905", "reply_to": 1001, "date": 1767000060, "edit": true}`,
	)

	got := make(chan domain.Message, 8)
	b := NewBridge(url, 10*time.Millisecond, func(_ context.Context, m domain.Message) error {
		got <- m
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	first := receive(t, got)
	if first.ID != 1001 {
		t.Errorf("first frame id = %d, want 1001", first.ID)
	}
	if first.Text != "XAUUSD BUY @ 4910" {
		t.Errorf("first frame text = %q", first.Text)
	}
	if first.ReplyTo != nil {
		t.Errorf("first frame reply_to = %v, want nil", *first.ReplyTo)
	}
	if want := time.Unix(1767000000, 0).UTC(); !first.Time.Equal(want) {
		t.Errorf("first frame time = %v, want %v", first.Time, want)
	}

	second := receive(t, got)
	if second.ID != 1002 {
		t.Errorf("second frame id = %d, want 1002", second.ID)
	}
	if second.ReplyTo == nil || *second.ReplyTo != 1001 {
		t.Errorf("second frame reply_to = %v, want 1001", second.ReplyTo)
	}
	if !second.Edited {
		t.Error("second frame Edited = false, want true")
	}
}

func TestBridgeDropsBadFrames(t *testing.T) {
	url := serveFrames(t,
		`not json at all`,
		`{"text": "frame without id", "date": 1767000000}`,
		`{"id": 1003, "text": "good frame", "date": 1767000000}`,
	)

	got := make(chan domain.Message, 8)
	b := NewBridge(url, 10*time.Millisecond, func(_ context.Context, m domain.Message) error {
		got <- m
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	m := receive(t, got)
	if m.ID != 1003 {
		t.Errorf("delivered frame id = %d, want 1003 (bad frames dropped)", m.ID)
	}
}

func TestBridgeReconnects(t *testing.T) {
	var connects atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := connects.Add(1)
		// First connection drops immediately after one frame; the second
		// stays up.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"id": 1, "text": "a", "date": 1767000000}`))
		if n == 1 {
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	got := make(chan domain.Message, 8)
	b := NewBridge(url, 10*time.Millisecond, func(_ context.Context, m domain.Message) error {
		got <- m
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	receive(t, got)
	receive(t, got)
	if connects.Load() < 2 {
		t.Errorf("connects = %d, want at least 2", connects.Load())
	}
}

func TestBridgeStopsOnCancel(t *testing.T) {
	url := serveFrames(t)

	b := NewBridge(url, 10*time.Millisecond, func(context.Context, domain.Message) error {
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
