package mailer

import (
	"bytes"
	"fmt"
	"mime"
	"net/mail"
	"sort"
	"time"

	"github.com/google/uuid"
)

// buildMessage renders an RFC 5322 message and returns it along with the
// Message-ID header value it carries.
func buildMessage(e *Email, domain string) ([]byte, string) {
	if domain == "" {
		domain = "localhost"
	}
	msgID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)

	date := e.Date
	if date.IsZero() {
		date = time.Now()
	}

	from := mail.Address{Name: e.FromName, Address: e.FromEmail}
	to := mail.Address{Address: e.To}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", to.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", e.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", msgID)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")

	keys := make([]string, 0, len(e.Headers))
	for k := range e.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, e.Headers[k])
	}
	b.WriteString("\r\n")
	b.Write(e.Body)

	return b.Bytes(), msgID
}
