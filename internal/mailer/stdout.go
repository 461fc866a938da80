package mailer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Stdout writes a summary of each email to a writer instead of delivering it.
type Stdout struct {
	writer io.Writer
}

// NewStdout creates a Stdout transport that prints to os.Stdout.
func NewStdout() *Stdout {
	return &Stdout{writer: os.Stdout}
}

func (s *Stdout) Name() string { return "stdout" }

func (s *Stdout) Send(_ context.Context, e *Email) (string, error) {
	var b strings.Builder
	b.WriteString("--- stdout mailer: message ---\n")
	fmt.Fprintf(&b, "ID:      %d\n", e.MessageID)
	fmt.Fprintf(&b, "From:    %s <%s>\n", e.FromName, e.FromEmail)
	fmt.Fprintf(&b, "To:      %s\n", e.To)
	fmt.Fprintf(&b, "Subject: %s\n", e.Subject)
	fmt.Fprintf(&b, "Body:    (%d bytes)\n", len(e.Body))
	b.WriteString("--- end ---\n")

	if _, err := io.WriteString(s.writer, b.String()); err != nil {
		return "", fmt.Errorf("stdout: write: %w", err)
	}
	return fmt.Sprintf("stdout-%d", e.MessageID), nil
}

// HealthCheck always returns nil.
func (s *Stdout) HealthCheck(_ context.Context) error {
	return nil
}
