package web_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/speechstudio/internal/web"
	"github.com/MrWong99/speechstudio/pkg/visual"
)

type wireMessage struct {
	Seq    uint64       `json:"seq"`
	Bins   []int        `json:"bins"`
	Bars   []visual.Bar `json:"bars"`
	Width  int          `json:"width"`
	Height int          `json:"height"`
	Clear  bool         `json:"clear"`
}

func dialHub(t *testing.T, h *web.Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	waitFor(t, func() bool { return h.Clients() == 1 })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(time.Millisecond)
	}
}

func read(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var m wireMessage
	if err := wsjson.Read(ctx, conn, &m); err != nil {
		t.Fatalf("wsjson.Read: %v", err)
	}
	return m
}

func TestHub_BroadcastsFrames(t *testing.T) {
	t.Parallel()
	h := web.NewHub()
	t.Cleanup(h.Close)
	conn := dialHub(t, h)

	h.Frame(visual.Frame{
		Seq:    7,
		Bins:   []uint8{0, 128, 255},
		Bars:   []visual.Bar{{X: 0, Width: 1, Height: 0}, {X: 2, Width: 1, Height: 64}},
		Width:  800,
		Height: 128,
	})

	m := read(t, conn)
	if m.Seq != 7 || m.Width != 800 || m.Height != 128 || m.Clear {
		t.Errorf("message: %+v", m)
	}
	if len(m.Bins) != 3 || m.Bins[1] != 128 || m.Bins[2] != 255 {
		t.Errorf("bins = %v, want [0 128 255]", m.Bins)
	}
	if len(m.Bars) != 2 || m.Bars[1].Height != 64 {
		t.Errorf("bars = %+v", m.Bars)
	}
}

func TestHub_ClearSurvivesFullQueue(t *testing.T) {
	t.Parallel()
	h := web.NewHub(web.WithClientBuffer(1))
	t.Cleanup(h.Close)
	conn := dialHub(t, h)

	// Nothing is read yet, so frames pile up and the clear must still
	// arrive last.
	for i := range 50 {
		h.Frame(visual.Frame{Seq: uint64(i), Bins: []uint8{1}})
	}
	h.Clear()

	for {
		m := read(t, conn)
		if m.Clear {
			return
		}
	}
}

func TestHub_CloseDisconnects(t *testing.T) {
	t.Parallel()
	h := web.NewHub()
	conn := dialHub(t, h)

	h.Close()
	waitFor(t, func() bool { return h.Clients() == 0 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
		t.Errorf("close status = %v, want StatusGoingAway (err %v)", got, err)
	}

	// Frames after close go nowhere.
	h.Frame(visual.Frame{Seq: 1})
	h.Close()
}

func TestHub_ClientLeaves(t *testing.T) {
	t.Parallel()
	h := web.NewHub()
	t.Cleanup(h.Close)
	conn := dialHub(t, h)

	conn.Close(websocket.StatusNormalClosure, "bye")
	waitFor(t, func() bool { return h.Clients() == 0 })
}
