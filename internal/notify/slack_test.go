package notify

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sydlexius/mediarr/internal/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type capture struct {
	mu     sync.Mutex
	bodies []string
	fail   int
}

func (c *capture) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodies = append(c.bodies, string(body))
	if c.fail > 0 {
		c.fail--
		http.Error(w, "try later", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func newTestNotifier(t *testing.T, c *capture) *Notifier {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(c.handler))
	t.Cleanup(srv.Close)
	n := NewNotifier(srv.URL, testLogger())
	n.sleep = func(time.Duration) {}
	return n
}

func TestScanCompletedMessage(t *testing.T) {
	c := &capture{}
	n := newTestNotifier(t, c)

	n.HandleEvent(event.Event{
		Type: event.ScanCompleted,
		Data: map[string]any{
			"scan_key": "movie", "directories": 120, "new": 3, "removed": 1, "unscanned": 0,
		},
	})

	if c.count() != 1 {
		t.Fatalf("requests = %d, want 1", c.count())
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(c.bodies[0]), &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	text := payload["text"]
	for _, want := range []string{"movie", "120", "3 new"} {
		if !strings.Contains(text, want) {
			t.Errorf("text %q missing %q", text, want)
		}
	}
}

func TestRetryThenSuccess(t *testing.T) {
	c := &capture{fail: 1}
	n := newTestNotifier(t, c)

	n.HandleEvent(event.Event{
		Type: event.ArtworkDownloaded,
		Data: map[string]any{"type": "poster", "path": "/movies/A/poster.jpg"},
	})

	if c.count() != 2 {
		t.Errorf("requests = %d, want 2 (one failure, one success)", c.count())
	}
}

func TestRetriesExhausted(t *testing.T) {
	c := &capture{fail: 100}
	n := newTestNotifier(t, c)

	n.HandleEvent(event.Event{
		Type: event.ArtworkUnavailable,
		Data: map[string]any{"type": "logo", "dir": "A (2001)", "tmdb_id": 68},
	})

	if c.count() != maxRetries {
		t.Errorf("requests = %d, want %d", c.count(), maxRetries)
	}
}

func TestUnhandledEventIgnored(t *testing.T) {
	c := &capture{}
	n := newTestNotifier(t, c)

	n.HandleEvent(event.Event{Type: event.RefreshScheduled})

	if c.count() != 0 {
		t.Errorf("requests = %d, want 0", c.count())
	}
}

func TestFormatMessage(t *testing.T) {
	e := event.Event{
		Type: event.ThumbnailsCompleted,
		Data: map[string]any{"section": "tv", "generated": 5, "failed": 1},
	}
	got := formatMessage(e)
	if !strings.Contains(got, "tv") || !strings.Contains(got, "5 generated") {
		t.Errorf("message = %q", got)
	}
}
