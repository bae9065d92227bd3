// Package notify turns push payloads into user-facing notifications.
package notify

import (
	"context"
	"encoding/json"

	cerrors "github.com/cockroachdb/errors"

	"github.com/4Bfast/costs-hub-edge/logger"
)

// Notification is a displayable push notification with its two standard
// actions ("view" opens the target URL, "dismiss" does nothing).
type Notification struct {
	Title   string
	Body    string
	URL     string
	Actions []string
}

// pushPayload is the JSON shape the backend publishes on the push channel.
type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Data  struct {
		URL string `json:"url"`
	} `json:"data"`
}

// ParsePush decodes a push payload. Payloads without a title are rejected;
// a missing target URL defaults to root.
func ParsePush(data []byte) (Notification, error) {
	var payload pushPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Notification{}, cerrors.Wrap(err, "invalid push payload")
	}
	if payload.Title == "" {
		return Notification{}, cerrors.New("push payload missing title")
	}
	url := payload.Data.URL
	if url == "" {
		url = "/"
	}
	return Notification{
		Title:   payload.Title,
		Body:    payload.Body,
		URL:     url,
		Actions: []string{"view", "dismiss"},
	}, nil
}

// Notifier delivers a notification to some display surface.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

type logNotifier struct {
	log logger.Logger
}

// NewLogNotifier returns a Notifier that writes notifications to the log.
func NewLogNotifier(log logger.Logger) Notifier {
	return &logNotifier{log: log.WithPrefix("[notify]")}
}

func (n *logNotifier) Send(_ context.Context, notification Notification) error {
	n.log.Info("%s: %s (view: %s)", notification.Title, notification.Body, notification.URL)
	return nil
}
