package digest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/garyellow/timetable-linebot-go/internal/lineutil"
)

// LinePusher pushes digests through the Messaging API.
type LinePusher struct {
	client *messaging_api.MessagingApiAPI
}

// NewLinePusher creates a pusher for the channel access token.
func NewLinePusher(channelToken string) (*LinePusher, error) {
	client, err := messaging_api.NewMessagingApiAPI(channelToken)
	if err != nil {
		return nil, fmt.Errorf("create messaging API client: %w", err)
	}
	return &LinePusher{client: client}, nil
}

// Push sends text to userID. The retry key makes LINE drop duplicates of a
// request it already accepted.
func (p *LinePusher) Push(_ context.Context, userID, text string) error {
	_, err := p.client.PushMessage(&messaging_api.PushMessageRequest{
		To:       userID,
		Messages: []messaging_api.MessageInterface{lineutil.NewTextMessage(text)},
	}, uuid.NewString())
	if err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}
