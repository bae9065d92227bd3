package notify

import (
	"context"

	cerrors "github.com/cockroachdb/errors"
	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
)

type shoutrrrNotifier struct {
	sender *router.ServiceRouter
}

// NewShoutrrrNotifier returns a Notifier that delivers through shoutrrr
// service URLs (ntfy, slack, telegram, ...).
func NewShoutrrrNotifier(urls ...string) (Notifier, error) {
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, cerrors.Wrap(err, "invalid notification service url")
	}
	return &shoutrrrNotifier{sender: sender}, nil
}

func (n *shoutrrrNotifier) Send(_ context.Context, notification Notification) error {
	params := types.Params{"title": notification.Title}
	body := notification.Body
	if notification.URL != "" && notification.URL != "/" {
		body += "\n" + notification.URL
	}
	var firstErr error
	for _, err := range n.sender.Send(body, &params) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
