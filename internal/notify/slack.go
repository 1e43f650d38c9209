package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackNotifier posts events to a Slack incoming webhook
type SlackNotifier struct {
	webhookURL string
}

// NewSlackNotifier builds a notifier for the given incoming webhook URL
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{webhookURL: webhookURL}
}

// Notify implements Notifier
func (s *SlackNotifier) Notify(ctx context.Context, event Event) error {
	msg := &slack.WebhookMessage{
		Text: event.Summary(),
	}
	if event.Group != nil {
		attachment := slack.Attachment{
			Color: colorFor(event.Type),
			Fields: []slack.AttachmentField{
				{Title: "Root", Value: event.Group.RootServiceID, Short: true},
				{Title: "Group", Value: event.Group.UUID, Short: true},
			},
		}
		if members := memberList(event.Group); members != "" {
			attachment.Fields = append(attachment.Fields,
				slack.AttachmentField{Title: "Affected", Value: members})
		}
		msg.Attachments = []slack.Attachment{attachment}
	}
	if err := slack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		return fmt.Errorf("failed to post slack webhook: %w", err)
	}
	return nil
}

func colorFor(t EventType) string {
	switch t {
	case EventGroupClosed:
		return "good"
	case EventGroupEscalated:
		return "danger"
	default:
		return "warning"
	}
}
