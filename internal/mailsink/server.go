package mailsink

import (
	"net"
	"strconv"
	"time"

	gosmtp "github.com/emersion/go-smtp"

	"github.com/sungwon/campaign-dispatch/internal/config"
)

const (
	defaultDomain          = "localhost"
	defaultTimeout         = 60 * time.Second
	defaultMaxMessageBytes = 10 << 20
)

// NewServer configures a go-smtp server around be. The sink never offers
// TLS, so PLAIN auth is allowed in the clear.
func NewServer(cfg config.SinkConfig, be *Backend) *gosmtp.Server {
	s := gosmtp.NewServer(be)
	s.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	s.Domain = cfg.Domain
	if s.Domain == "" {
		s.Domain = defaultDomain
	}
	s.ReadTimeout = cfg.ReadTimeout
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = defaultTimeout
	}
	s.WriteTimeout = cfg.WriteTimeout
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = defaultTimeout
	}
	s.MaxMessageBytes = cfg.MaxMessageBytes
	if s.MaxMessageBytes <= 0 {
		s.MaxMessageBytes = defaultMaxMessageBytes
	}
	s.AllowInsecureAuth = true
	return s
}
