// Package notify posts library activity to a Slack incoming webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sydlexius/mediarr/internal/event"
)

const (
	maxRetries     = 3
	requestTimeout = 10 * time.Second
)

// Notifier delivers event summaries to one Slack webhook URL with
// bounded retry. Delivery failures are logged, never escalated; losing
// a notification must not disturb scanning.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	sleep      func(d time.Duration)
	logger     *slog.Logger
}

// NewNotifier creates a Slack notifier.
func NewNotifier(webhookURL string, logger *slog.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		sleep:      time.Sleep,
		logger:     logger.With(slog.String("component", "notify")),
	}
}

// Register subscribes the notifier to the events worth telling a human
// about.
func (n *Notifier) Register(bus *event.Bus) {
	for _, t := range []event.Type{
		event.ScanCompleted,
		event.ArtworkDownloaded,
		event.ArtworkUnavailable,
		event.ThumbnailsCompleted,
	} {
		bus.Subscribe(t, n.HandleEvent)
	}
}

// HandleEvent formats and delivers one event.
func (n *Notifier) HandleEvent(e event.Event) {
	text := formatMessage(e)
	if text == "" {
		return
	}
	n.deliver(text, e)
}

func (n *Notifier) deliver(text string, e event.Event) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		n.logger.Error("encoding slack payload", "error", err)
		return
	}

	var lastErr error
	for attempt := range maxRetries {
		if attempt > 0 {
			n.sleep(time.Duration(1<<uint(attempt-1)) * time.Second)
		}

		lastErr = n.send(body)
		if lastErr == nil {
			n.logger.Debug("slack notification delivered",
				"event", string(e.Type), "attempt", attempt+1)
			return
		}

		n.logger.Warn("slack delivery failed",
			"event", string(e.Type), "attempt", attempt+1, "error", lastErr)
	}

	n.logger.Error("slack delivery exhausted retries",
		"event", string(e.Type), "error", lastErr)
}

func (n *Notifier) send(body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()         //nolint:errcheck
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func formatMessage(e event.Event) string {
	switch e.Type {
	case event.ScanCompleted:
		return fmt.Sprintf(":mag: Scan of *%v* finished: %v directories (%v new, %v removed, %v unscanned)",
			e.Data["scan_key"], e.Data["directories"], e.Data["new"], e.Data["removed"], e.Data["unscanned"])
	case event.ArtworkDownloaded:
		return fmt.Sprintf(":frame_with_picture: Installed %v for `%v`", e.Data["type"], e.Data["path"])
	case event.ArtworkUnavailable:
		return fmt.Sprintf(":no_entry_sign: No %v available upstream for *%v* (tmdb-%v)",
			e.Data["type"], e.Data["dir"], e.Data["tmdb_id"])
	case event.ThumbnailsCompleted:
		return fmt.Sprintf(":camera: Thumbnail pass for *%v*: %v generated, %v failed",
			e.Data["section"], e.Data["generated"], e.Data["failed"])
	default:
		return ""
	}
}
