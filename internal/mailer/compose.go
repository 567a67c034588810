package mailer

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// Composer serializes one message into RFC 5322 bytes ready to follow the
// SMTP DATA command. The clock is injectable for tests.
type Composer struct {
	Now func() time.Time
}

// NewComposer returns a Composer on the real clock.
func NewComposer() *Composer {
	return &Composer{Now: time.Now}
}

// Compose builds a multipart/alternative message with a text/plain part
// derived from the HTML and the HTML itself, both base64 encoded.
//
// The subject is always emitted as a UTF-8 encoded-word, ASCII or not; the
// plain-text part is a naive tag strip of the HTML. Stored templates depend
// on both behaviors staying exactly as they are.
func (c *Composer) Compose(fromName, fromEmail, to, subject, html string) []byte {
	now := c.Now()

	// Fresh boundary per message: timestamp plus a random token, so body
	// content cannot collide with it.
	boundary := fmt.Sprintf("=_%d_%s", now.UnixNano(), uuid.New().String()[:8])

	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: \"%s\" <%s>\r\n", fromName, fromEmail))
	b.WriteString(fmt.Sprintf("To: %s\r\n", to))
	b.WriteString(fmt.Sprintf("Subject: =?UTF-8?B?%s?=\r\n", base64.StdEncoding.EncodeToString([]byte(subject))))
	b.WriteString(fmt.Sprintf("Message-ID: <%s@%s>\r\n", uuid.New().String(), domainOf(fromEmail)))
	b.WriteString(fmt.Sprintf("Date: %s\r\n", now.Format(time.RFC1123Z)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	b.WriteString("\r\n")

	b.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	b.WriteString(encodeBodyBase64(stripTags(html)))

	b.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	b.WriteString(encodeBodyBase64(html))

	b.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	return []byte(b.String())
}

// stripTags derives the plain-text alternative by removing every <...>
// tag. Known lossy; the HTML part is the authoritative rendering.
func stripTags(html string) string {
	return htmlTagRegex.ReplaceAllString(html, "")
}

// encodeBodyBase64 encodes a body part wrapped at 76 columns per RFC 2045.
func encodeBodyBase64(s string) string {
	enc := base64.StdEncoding.EncodeToString([]byte(s))
	var b strings.Builder
	for len(enc) > 76 {
		b.WriteString(enc[:76])
		b.WriteString("\r\n")
		enc = enc[76:]
	}
	b.WriteString(enc)
	b.WriteString("\r\n")
	return b.String()
}

func domainOf(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 && i < len(email)-1 {
		return email[i+1:]
	}
	return "localhost"
}
