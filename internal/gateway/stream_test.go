package gateway

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/buddybot89/claw-control/internal/hub"
	"github.com/buddybot89/claw-control/internal/store"
)

// sseClient reads frames off a live event stream.
type sseClient struct {
	cancel context.CancelFunc
	resp   *http.Response
	reader *bufio.Reader
	lines  chan string
	errs   chan error
}

func openStream(t *testing.T, ts *httptest.Server, path string) *sseClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+path, nil)
	if err != nil {
		cancel()
		t.Fatalf("build request: %v", err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		cancel()
		t.Fatalf("open stream: %v", err)
	}
	c := &sseClient{
		cancel: cancel,
		resp:   resp,
		reader: bufio.NewReader(resp.Body),
		lines:  make(chan string, 1),
		errs:   make(chan error, 1),
	}
	// A single reader goroutine for the connection's lifetime; spawning
	// one per nextEvent call would leak readers that swallow frames
	// destined for later calls.
	go func() {
		for {
			line, err := c.reader.ReadString('\n')
			if err != nil {
				c.errs <- err
				return
			}
			c.lines <- line
		}
	}()
	t.Cleanup(func() {
		c.cancel()
		c.resp.Body.Close()
	})
	return c
}

// nextEvent reads lines until it has one complete event frame and
// returns its name and data line.
func (c *sseClient) nextEvent(t *testing.T) (string, string) {
	t.Helper()
	var event, data string
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timeout reading stream frame")
		case err := <-c.errs:
			t.Fatalf("read stream: %v", err)
		case line := <-c.lines:
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && event != "":
				return event, data
			}
		}
	}
}

func TestEventStream_InitThenLiveUpdates(t *testing.T) {
	srv, st, h := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	if _, err := st.CreateTask(context.Background(), store.NewTask{Title: "preexisting"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	c := openStream(t, ts, "/api/events")
	if ct := c.resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	event, data := c.nextEvent(t)
	if event != hub.EventInit {
		t.Fatalf("first event = %q, want init", event)
	}
	if !strings.Contains(data, "preexisting") {
		t.Fatalf("init snapshot missing existing task: %s", data)
	}
	if !strings.Contains(data, `"demoMode":false`) {
		t.Fatalf("init snapshot missing demo flag: %s", data)
	}

	// A mutation published after connect arrives as a live frame.
	h.Publish(hub.EventTaskCreated, map[string]any{"title": "later"})
	event, data = c.nextEvent(t)
	if event != hub.EventTaskCreated {
		t.Fatalf("event = %q, want task-created", event)
	}
	if !strings.Contains(data, "later") {
		t.Fatalf("payload = %s", data)
	}
}

func TestEventStream_DemoFlagStartsDriver(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c := openStream(t, ts, "/api/events?demo=true")

	event, data := c.nextEvent(t)
	if event != hub.EventInit {
		t.Fatalf("first event = %q, want init", event)
	}
	if !strings.Contains(data, `"demoMode":true`) {
		t.Fatalf("init snapshot missing demo flag: %s", data)
	}

	event, _ = c.nextEvent(t)
	if event != hub.EventDemoStarted {
		t.Fatalf("event = %q, want demo-started", event)
	}
}

func TestEventStream_DisconnectDropsSubscriber(t *testing.T) {
	srv, _, h := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c := openStream(t, ts, "/api/events")
	c.nextEvent(t)

	if got := h.SubscriberCount(); got != 1 {
		t.Fatalf("subscribers = %d, want 1", got)
	}

	c.cancel()
	c.resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not removed, count = %d", h.SubscriberCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
