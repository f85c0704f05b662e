package google

import (
	"context"
	"encoding/base64"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"mailtriage/pkg/otel"
)

// Mailbox is the Gmail surface the services use.
type Mailbox interface {
	ListMessageIDs(ctx context.Context, query string, max int64) ([]string, error)
	GetMessage(ctx context.Context, id string) (*gmail.Message, error)
	Send(ctx context.Context, raw []byte, threadID string) error
}

// MailClient talks to Gmail as the authenticated user ("me").
type MailClient struct {
	svc     *gmail.Service
	timeout time.Duration
}

func (c *MailClient) ListMessageIDs(ctx context.Context, query string, max int64) (ids []string, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx, end := otel.StartClientSpan(ctx, "gmail.messages.list")
	defer func() { end(err) }()

	resp, err := c.svc.Users.Messages.List("me").Q(query).MaxResults(max).Context(ctx).Do()
	if err != nil {
		return nil, wrapError("list messages", err)
	}

	ids = make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func (c *MailClient) GetMessage(ctx context.Context, id string) (msg *gmail.Message, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx, end := otel.StartClientSpan(ctx, "gmail.messages.get")
	defer func() { end(err) }()

	msg, err = c.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, wrapError("get message "+id, err)
	}
	return msg, nil
}

// Send delivers an RFC 5322 message into threadID.
func (c *MailClient) Send(ctx context.Context, raw []byte, threadID string) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx, end := otel.StartClientSpan(ctx, "gmail.messages.send")
	defer func() { end(err) }()

	msg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: threadID,
	}
	if _, err = c.svc.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		return wrapError("send message", err)
	}
	return nil
}
