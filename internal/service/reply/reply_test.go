package reply

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/nalgeon/be"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
)

type captureSender struct {
	raw      []byte
	threadID string
	calls    int
}

func (c *captureSender) Send(_ context.Context, raw []byte, threadID string) error {
	c.calls++
	c.raw = raw
	c.threadID = threadID
	return nil
}

var sender = &model.User{ID: uuid.New(), Email: "me@example.com", DisplayName: "Jane Doe"}

func newTestService() *Service {
	s := NewService()
	s.now = func() time.Time { return time.Date(2025, 9, 18, 10, 0, 0, 0, time.UTC) }
	return s
}

func TestSendComposesThreadedReply(t *testing.T) {
	out := &captureSender{}
	err := newTestService().Send(context.Background(), sender, out, Request{
		To:         "Bob <bob@example.com>",
		Subject:    "Re: Project sync",
		Body:       "Tuesday at 4pm works for me.",
		ThreadID:   "thread-1",
		InReplyTo:  "<orig@mail.gmail.com>",
		References: "<root@mail.gmail.com> <orig@mail.gmail.com>",
	})
	be.Err(t, err, nil)
	be.Equal(t, out.threadID, "thread-1")

	r, err := mail.CreateReader(bytes.NewReader(out.raw))
	be.Err(t, err, nil)

	from, err := r.Header.AddressList("From")
	be.Err(t, err, nil)
	be.Equal(t, from[0].Name, "Jane Doe")
	be.Equal(t, from[0].Address, "me@example.com")

	to, err := r.Header.AddressList("To")
	be.Err(t, err, nil)
	be.Equal(t, to[0].Address, "bob@example.com")

	subject, err := r.Header.Subject()
	be.Err(t, err, nil)
	be.Equal(t, subject, "Re: Project sync")
	be.Equal(t, r.Header.Get("In-Reply-To"), "<orig@mail.gmail.com>")
	be.Equal(t, r.Header.Get("References"), "<root@mail.gmail.com> <orig@mail.gmail.com>")

	part, err := r.NextPart()
	be.Err(t, err, nil)
	body, err := io.ReadAll(part.Body)
	be.Err(t, err, nil)
	be.Equal(t, string(body), "Tuesday at 4pm works for me.")
}

func TestSendOmitsEmptyThreadingHeaders(t *testing.T) {
	out := &captureSender{}
	err := newTestService().Send(context.Background(), sender, out, Request{
		To: "bob@example.com", Subject: "Hi", Body: "Hello", ThreadID: "t",
	})
	be.Err(t, err, nil)
	be.True(t, !bytes.Contains(out.raw, []byte("In-Reply-To")))
	be.True(t, !bytes.Contains(out.raw, []byte("References")))
}

func TestSendRequiresFields(t *testing.T) {
	out := &captureSender{}
	svc := newTestService()

	reqs := []Request{
		{Subject: "Hi", Body: "Hello", ThreadID: "t"},
		{To: "bob@example.com", Body: "Hello", ThreadID: "t"},
		{To: "bob@example.com", Subject: "Hi", ThreadID: "t"},
		{To: "bob@example.com", Subject: "Hi", Body: "Hello"},
	}
	for _, req := range reqs {
		err := svc.Send(context.Background(), sender, out, req)
		be.Err(t, err, ErrMissingFields)
		be.Err(t, err, apperr.ErrValidation)
	}
	be.Equal(t, out.calls, 0)
}

func TestSendRejectsBadRecipient(t *testing.T) {
	out := &captureSender{}
	err := newTestService().Send(context.Background(), sender, out, Request{
		To: "not an address", Subject: "Hi", Body: "Hello", ThreadID: "t",
	})
	be.Err(t, err, apperr.ErrValidation)
	be.Equal(t, out.calls, 0)
}
