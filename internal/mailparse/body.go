package mailparse

import (
	"bytes"
	"encoding/base64"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	gmail "google.golang.org/api/gmail/v1"
)

// ExtractBody walks the part tree breadth-first. The first HTML part with
// data wins immediately; otherwise the first plain-text part; otherwise the
// top-level body. It returns "" when nothing decodes. The result is valid
// UTF-8 with no NUL bytes.
func ExtractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	var plain string
	queue := []*gmail.MessagePart{payload}
	for len(queue) > 0 {
		part := queue[0]
		queue = queue[1:]
		if part == nil {
			continue
		}

		if data := partData(part); data != "" {
			switch mimeType(part) {
			case "text/html":
				if text, ok := partText(part, data); ok {
					return text
				}
			case "text/plain":
				if plain == "" {
					if text, ok := partText(part, data); ok {
						plain = text
					}
				}
			}
		}
		queue = append(queue, part.Parts...)
	}

	if plain != "" {
		return plain
	}
	if data := partData(payload); data != "" {
		if text, ok := partText(payload, data); ok {
			return text
		}
	}
	return ""
}

func partData(p *gmail.MessagePart) string {
	if p.Body == nil {
		return ""
	}
	return p.Body.Data
}

func mimeType(p *gmail.MessagePart) string {
	mt, _, _ := strings.Cut(p.MimeType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// partText decodes data and converts it from the part's declared charset.
func partText(p *gmail.MessagePart, data string) (string, bool) {
	raw, ok := decode(data)
	if !ok {
		return "", false
	}
	return toUTF8(raw, partCharset(p)), true
}

// decode accepts the URL-safe alphabet Gmail uses, padded or not, and the
// standard alphabet.
func decode(data string) ([]byte, bool) {
	for _, enc := range []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	} {
		if b, err := enc.DecodeString(data); err == nil {
			return b, true
		}
	}
	return nil, false
}

// partCharset reads the charset parameter from the part's Content-Type
// header, falling back to its MIME type.
func partCharset(p *gmail.MessagePart) string {
	value, ok := Header(p.Headers, "Content-Type")
	if !ok {
		value = p.MimeType
	}
	if value == "" {
		return ""
	}

	var h message.Header
	h.Set("Content-Type", value)
	_, params, err := h.ContentType()
	if err != nil {
		return ""
	}
	return params["charset"]
}

// toUTF8 converts raw from cs. Unknown charsets keep the raw bytes;
// sequences that are still invalid become U+FFFD and NULs are dropped.
func toUTF8(raw []byte, cs string) string {
	switch strings.ToLower(strings.TrimSpace(cs)) {
	case "", "utf-8", "utf8", "us-ascii":
	default:
		if r, err := charset.Reader(cs, bytes.NewReader(raw)); err == nil {
			if converted, err := io.ReadAll(r); err == nil {
				raw = converted
			}
		}
	}
	text := strings.ToValidUTF8(string(raw), "\uFFFD")
	return strings.ReplaceAll(text, "\x00", "")
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>?`)
	whitespacePattern = regexp.MustCompile(`[\s\p{Z}]+`)
)

// PlainText strips markup, unescapes entities, collapses whitespace and
// truncates to limit runes. A non-positive limit disables truncation.
func PlainText(body string, limit int) string {
	text := tagPattern.ReplaceAllString(body, " ")
	text = html.UnescapeString(text)
	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))

	if limit > 0 {
		if runes := []rune(text); len(runes) > limit {
			text = string(runes[:limit])
		}
	}
	return text
}
