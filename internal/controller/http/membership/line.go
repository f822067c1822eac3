package membership

import (
	"context"
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Replier sends a text reply for a webhook event.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// LineReplier sends replies through the LINE Messaging API.
type LineReplier struct {
	api *messaging_api.MessagingApiAPI
}

func NewLineReplier(channelAccessToken string) (*LineReplier, error) {
	api, err := messaging_api.NewMessagingApiAPI(channelAccessToken)
	if err != nil {
		return nil, fmt.Errorf("messaging api client: %w", err)
	}
	return &LineReplier{api: api}, nil
}

func (l *LineReplier) Reply(ctx context.Context, replyToken, text string) error {
	_, err := l.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: text},
		},
	})
	return err
}
