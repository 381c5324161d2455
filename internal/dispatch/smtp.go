package dispatch

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"
)

// Session is a live SMTP connection owned by exactly one worker.
type Session interface {
	Send(from, to string, msg []byte) error
	Close() error
}

// SessionFactory dials new SMTP sessions. Workers redial through the
// factory after a mid-run disconnect.
type SessionFactory interface {
	Dial() (Session, error)
}

// Dialer opens authenticated TLS sessions to the relay.
type Dialer struct {
	host     string
	port     int
	username string
	password string
	timeout  time.Duration
}

// NewDialer builds a session factory for the given relay.
func NewDialer(host string, port int, username, password string, timeout time.Duration) *Dialer {
	return &Dialer{host: host, port: port, username: username, password: password, timeout: timeout}
}

// Dial connects, negotiates TLS, and authenticates. The returned session
// is not safe for concurrent use.
func (d *Dialer) Dial() (Session, error) {
	addr := fmt.Sprintf("%s:%d", d.host, d.port)
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: d.timeout}, "tcp", addr, &tls.Config{ServerName: d.host})
	if err != nil {
		return nil, fmt.Errorf("smtp connect to %s: %w", addr, err)
	}
	c, err := smtp.NewClient(conn, d.host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	if d.username != "" {
		if err := c.Auth(smtp.PlainAuth("", d.username, d.password, d.host)); err != nil {
			c.Close()
			return nil, fmt.Errorf("smtp auth: %w", err)
		}
	}
	return &smtpSession{client: c}, nil
}

type smtpSession struct {
	client *smtp.Client
}

// Send runs one MAIL FROM / RCPT TO / DATA transaction. The RSET before
// each transaction clears any state a previous failure left behind.
func (s *smtpSession) Send(from, to string, msg []byte) error {
	if err := s.client.Reset(); err != nil {
		return fmt.Errorf("RSET: %w", err)
	}
	if err := s.client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := s.client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := s.client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("DATA close: %w", err)
	}
	return nil
}

func (s *smtpSession) Close() error {
	if err := s.client.Quit(); err != nil {
		return s.client.Close()
	}
	return nil
}
