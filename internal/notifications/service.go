package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"minutes/internal/config"
	"minutes/internal/services"
)

const (
	userAgent          = "minutes/0.1"
	maxSummaryRunes    = 280
	defaultSendTimeout = 10 * time.Second
)

// Outcome describes a finished analysis task.
type Outcome struct {
	TaskID   int64
	RunID    string
	Pipeline string
	Duration time.Duration
	Summary  string
	Failure  *services.Detail
}

// Service defines the notification surface used by the runtime.
type Service interface {
	NotifyTaskFinished(ctx context.Context, outcome Outcome) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed notifier, or a no-op one when
// notifications.ntfy_topic is empty.
func NewService(cfg *config.Config) Service {
	if cfg == nil || strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return noopService{}
	}
	timeout := cfg.NotificationTimeout()
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &ntfyService{
		endpoint: strings.TrimSpace(cfg.Notifications.NtfyTopic),
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyTaskFinished(ctx context.Context, outcome Outcome) error {
	return n.send(ctx, formatOutcome(outcome))
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, message{
		title:    "minutes - Test",
		body:     "Notification system test",
		tags:     []string{"minutes", "test"},
		priority: "low",
	})
}

func formatOutcome(outcome Outcome) message {
	label := fmt.Sprintf("Task %d (%s)", outcome.TaskID, outcome.Pipeline)
	if outcome.Failure != nil {
		body := fmt.Sprintf("%s failed", label)
		if outcome.Failure.Stage != "" {
			body += " at " + outcome.Failure.Stage
		}
		body += fmt.Sprintf(": %s", outcome.Failure.Kind)
		if outcome.Failure.Message != "" {
			body += "\n" + outcome.Failure.Message
		}
		return message{
			title:    "minutes - Analysis Failed",
			body:     body,
			tags:     []string{"minutes", "analysis", "failed"},
			priority: "high",
		}
	}

	body := label + " completed"
	if d := outcome.Duration.Round(time.Second); d > 0 {
		body += " in " + d.String()
	}
	if summary := truncate(strings.TrimSpace(outcome.Summary), maxSummaryRunes); summary != "" {
		body += "\n" + summary
	}
	return message{
		title: "minutes - Analysis Complete",
		body:  body,
		tags:  []string{"minutes", "analysis", "completed"},
	}
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyTaskFinished(context.Context, Outcome) error { return nil }
func (noopService) TestNotification(context.Context) error            { return nil }
