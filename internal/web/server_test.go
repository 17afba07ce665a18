package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/PoleGo/internal/logic/control"
	"github.com/cjeanneret/PoleGo/internal/logic/motion"
)

func newTestServer(t *testing.T, runControl RunControlFunc) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(":0", NewStatusBroadcaster(), NewTickFeed(), runControl, FormConfig{Policy: "alternate"})
	ts := httptest.NewServer(s.Mux())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestServer_Routes(t *testing.T) {
	_, ts := newTestServer(t, noopControl)

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/static/app.js", http.StatusOK},
		{http.MethodGet, "/config", http.StatusOK},
		{http.MethodGet, "/state", http.StatusNoContent},
		{http.MethodPost, "/stop", http.StatusConflict},
		{http.MethodGet, "/run", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, ts.URL+tc.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestServer_EmbeddedIndex(t *testing.T) {
	_, ts := newTestServer(t, noopControl)
	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "/static/app.js") {
		t.Errorf("index page does not load the client script")
	}
}

func TestServer_StateWebsocket(t *testing.T) {
	s, ts := newTestServer(t, noopControl)
	feed := s.Handlers().Ticks
	feed.ObserveTick(control.Tick{Seq: 1, Direction: motion.Left})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/state/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))

	read := func() control.Tick {
		t.Helper()
		_, msg, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var tk control.Tick
		if err := json.Unmarshal(msg, &tk); err != nil {
			t.Fatalf("unmarshal %s: %v", msg, err)
		}
		return tk
	}

	// The latest tick is sent on connect.
	if tk := read(); tk.Seq != 1 {
		t.Errorf("first message seq = %d, want 1", tk.Seq)
	}
	feed.ObserveTick(control.Tick{Seq: 2, Direction: motion.Right})
	if tk := read(); tk.Seq != 2 || tk.Direction != motion.Right {
		t.Errorf("streamed tick = %+v", tk)
	}
}

func TestServer_RunCancelledOnShutdown(t *testing.T) {
	started := make(chan struct{})
	stopped := make(chan struct{})
	s := NewServer("127.0.0.1:0", NewStatusBroadcaster(), NewTickFeed(), func(ctx context.Context, _ Overrides) error {
		close(started)
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	}, FormConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	// Start a run through the handler directly; the listener address is not needed.
	w := postRun(s.Handlers(), nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	<-started

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
	select {
	case <-stopped:
	default:
		t.Error("Run returned before the control run stopped")
	}
}
