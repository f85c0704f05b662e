package reply

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
)

var (
	ErrMissingFields    = apperr.NewValidation("Missing required fields for reply")
	ErrInvalidRecipient = apperr.NewValidation("Invalid recipient address")
)

// Sender delivers a raw RFC 5322 message into a thread.
type Sender interface {
	Send(ctx context.Context, raw []byte, threadID string) error
}

// Request is a reply composed by the user in the client.
type Request struct {
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	ThreadID   string `json:"threadId"`
	InReplyTo  string `json:"inReplyTo"`
	References string `json:"references"`
}

type Service struct {
	now func() time.Time
}

func NewService() *Service {
	return &Service{now: time.Now}
}

// Send composes a plain text reply from user and sends it in req.ThreadID.
func (s *Service) Send(ctx context.Context, user *model.User, sender Sender, req Request) error {
	if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Subject) == "" ||
		req.Body == "" || strings.TrimSpace(req.ThreadID) == "" {
		return ErrMissingFields
	}

	raw, err := s.compose(user, req)
	if err != nil {
		return err
	}
	if err := sender.Send(ctx, raw, req.ThreadID); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (s *Service) compose(user *model.User, req Request) ([]byte, error) {
	to, err := mail.ParseAddressList(req.To)
	if err != nil || len(to) == 0 {
		return nil, ErrInvalidRecipient
	}

	var h mail.Header
	h.SetDate(s.now())
	h.SetAddressList("From", []*mail.Address{{Name: user.DisplayName, Address: user.Email}})
	h.SetAddressList("To", to)
	h.SetSubject(req.Subject)
	if v := strings.TrimSpace(req.InReplyTo); v != "" {
		h.Set("In-Reply-To", v)
	}
	if v := strings.TrimSpace(req.References); v != "" {
		h.Set("References", v)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}
	if _, err := io.WriteString(w, req.Body); err != nil {
		return nil, fmt.Errorf("write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message writer: %w", err)
	}
	return buf.Bytes(), nil
}
