package mailsink

import (
	"bytes"
	"context"
	"crypto/subtle"
	"io"
	"net/mail"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/rs/zerolog"
)

var (
	errAuthRequired = &gosmtp.SMTPError{
		Code:         530,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 0},
		Message:      "Authentication required",
	}
	errAuthFailed = &gosmtp.SMTPError{
		Code:         535,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 8},
		Message:      "Authentication failed",
	}
)

// Session handles a single SMTP connection.
type Session struct {
	ctx           context.Context
	log           zerolog.Logger
	backend       *Backend
	user          string
	authenticated bool
	sender        string
	recipients    []string
}

// AuthMechanisms advertises PLAIN. Without configured credentials any
// username and password are accepted.
func (s *Session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

// Auth returns the SASL server for mech.
func (s *Session) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, gosmtp.ErrAuthUnknownMechanism
	}
	return sasl.NewPlainServer(func(_, username, password string) error {
		creds := s.backend.creds
		if creds.required() {
			userOK := subtle.ConstantTimeCompare([]byte(username), []byte(creds.Username)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(password), []byte(creds.Password)) == 1
			if !userOK || !passOK {
				sinkRejectedTotal.WithLabelValues("auth").Inc()
				s.log.Warn().Str("username", username).Msg("auth failed")
				return errAuthFailed
			}
		}
		s.user = username
		s.authenticated = true
		s.log.Debug().Str("username", username).Msg("auth successful")
		return nil
	}), nil
}

// Mail handles MAIL FROM. The null reverse-path is accepted.
func (s *Session) Mail(from string, _ *gosmtp.MailOptions) error {
	if s.backend.creds.required() && !s.authenticated {
		return errAuthRequired
	}
	if from == "" {
		s.sender = ""
		return nil
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		s.log.Warn().Str("from", from).Msg("invalid sender address format")
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 7},
			Message:      "Invalid sender address",
		}
	}
	s.sender = addr.Address
	return nil
}

// Rcpt handles RCPT TO.
func (s *Session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	if s.backend.creds.required() && !s.authenticated {
		return errAuthRequired
	}
	addr, err := mail.ParseAddress(to)
	if err != nil {
		s.log.Warn().Str("to", to).Msg("invalid recipient address format")
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "Invalid recipient address",
		}
	}
	s.recipients = append(s.recipients, addr.Address)
	return nil
}

// Data reads the message and hands it to the sink. Bodies are never logged.
func (s *Session) Data(r io.Reader) error {
	if s.backend.creds.required() && !s.authenticated {
		return errAuthRequired
	}
	if len(s.recipients) == 0 {
		return &gosmtp.SMTPError{
			Code:         503,
			EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
			Message:      "No recipients specified",
		}
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to read message data")
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "Error reading message",
		}
	}

	msg := &Message{
		From:       s.sender,
		To:         append([]string(nil), s.recipients...),
		User:       s.user,
		Data:       raw,
		ReceivedAt: time.Now().UTC(),
	}
	if parsed, err := mail.ReadMessage(bytes.NewReader(raw)); err == nil {
		msg.Subject = parsed.Header.Get("Subject")
		msg.MessageID = parsed.Header.Get("Message-Id")
	}

	if err := s.backend.sink.Deliver(s.ctx, msg); err != nil {
		s.log.Error().Err(err).Msg("sink rejected message")
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "Error storing message",
		}
	}
	sinkMessagesTotal.Inc()

	s.log.Info().
		Str("from", msg.From).
		Strs("to", msg.To).
		Str("subject", msg.Subject).
		Str("message_id", msg.MessageID).
		Int("bytes", len(raw)).
		Msg("message received")

	return nil
}

// Reset clears the envelope but keeps the authentication state.
func (s *Session) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Logout is called when the client disconnects.
func (s *Session) Logout() error {
	s.backend.release()
	s.log.Debug().Msg("session closed")
	return nil
}
