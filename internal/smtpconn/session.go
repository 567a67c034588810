// Package smtpconn implements the client side of one SMTP submission:
// connect, negotiate encryption, authenticate, transmit a single message,
// and tear down. Sessions are single use; the dispatch loop opens a fresh
// one per recipient.
package smtpconn

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Encryption selects how the connection to the relay is secured.
type Encryption string

const (
	EncryptionNone     Encryption = "none"
	EncryptionSSL      Encryption = "ssl"
	EncryptionStartTLS Encryption = "starttls"
)

// ParseEncryption maps a stored encryption value onto an Encryption mode.
// Unknown values degrade to EncryptionNone.
func ParseEncryption(s string) Encryption {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ssl", "tls":
		return EncryptionSSL
	case "starttls":
		return EncryptionStartTLS
	default:
		return EncryptionNone
	}
}

const (
	defaultConnectTimeout = 15 * time.Second
	defaultIOTimeout      = 10 * time.Second
)

// Config carries everything a Session needs to reach the relay.
type Config struct {
	Host       string
	Port       int
	Encryption Encryption
	Username   string
	Password   string

	LocalName      string        // EHLO identity; defaults to "localhost".
	ConnectTimeout time.Duration // Defaults to 15s.
	IOTimeout      time.Duration // Per read/write; defaults to 10s.
	TLSConfig      *tls.Config   // Optional override, used by tests.
}

func (c Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) tlsConfig() *tls.Config {
	if c.TLSConfig != nil {
		return c.TLSConfig.Clone()
	}
	return &tls.Config{ServerName: c.Host}
}

// Session speaks SMTP for exactly one outbound message on exactly one
// socket. A Session is single use: one Send per instance, never reused
// across recipients.
type Session struct {
	cfg  Config
	conn net.Conn
	br   *bufio.Reader
	caps map[string]string
	used bool
}

// New creates an unconnected session. Nothing is dialed until Send.
func New(cfg Config) *Session {
	if cfg.LocalName == "" {
		cfg.LocalName = "localhost"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.IOTimeout == 0 {
		cfg.IOTimeout = defaultIOTimeout
	}
	return &Session{cfg: cfg}
}

// Send connects to the relay, walks the full command sequence, transmits
// msg from sender to recipient, and closes the socket. The socket is
// released on every exit path, including mid-sequence failures.
func (s *Session) Send(ctx context.Context, from, to string, msg []byte) error {
	if s.used {
		return errors.New("smtp session already used")
	}
	s.used = true

	if err := s.connect(ctx); err != nil {
		return err
	}
	defer s.conn.Close()

	reply, err := s.read(stageGreeting)
	if err != nil {
		return err
	}
	if err := expect(stageGreeting, reply); err != nil {
		return err
	}

	if err := s.ehlo(); err != nil {
		return err
	}

	if s.cfg.Encryption == EncryptionStartTLS {
		if _, ok := s.caps["STARTTLS"]; ok {
			if err := s.startTLS(ctx); err != nil {
				return err
			}
		}
	}

	if s.cfg.Username != "" {
		if err := s.authLogin(); err != nil {
			return err
		}
	}

	if reply, err = s.cmd(stageMailFrom, "MAIL FROM:<%s>", from); err != nil {
		return err
	}
	if err := expect(stageMailFrom, reply); err != nil {
		return err
	}

	if reply, err = s.cmd(stageRcptTo, "RCPT TO:<%s>", to); err != nil {
		return err
	}
	if err := expect(stageRcptTo, reply); err != nil {
		return err
	}

	if reply, err = s.cmd(stageData, "DATA"); err != nil {
		return err
	}
	if err := expect(stageData, reply); err != nil {
		return err
	}

	if err := s.writeBody(msg); err != nil {
		return err
	}
	if reply, err = s.read(stageDataEnd); err != nil {
		return err
	}
	if err := expect(stageDataEnd, reply); err != nil {
		return err
	}

	// Best-effort QUIT; the message is already accepted.
	s.cmd(stageQuit, "QUIT")
	return nil
}

func (s *Session) connect(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: s.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.addr())
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return &TimeoutError{Stage: "connect", Err: err}
		}
		return &ConnectionError{Addr: s.cfg.addr(), Err: err}
	}

	// Implicit TLS wraps the socket before any SMTP traffic.
	if s.cfg.Encryption == EncryptionSSL {
		tlsConn := tls.Client(conn, s.cfg.tlsConfig())
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return &ConnectionError{Addr: s.cfg.addr(), Err: err}
		}
		conn = tlsConn
	}

	s.conn = conn
	s.br = bufio.NewReader(conn)
	return nil
}

// ehlo issues EHLO and records the advertised capabilities. Re-issued
// after a STARTTLS upgrade because the capability set may change.
func (s *Session) ehlo() error {
	reply, err := s.cmd(stageEHLO, "EHLO %s", s.cfg.LocalName)
	if err != nil {
		return err
	}
	if err := expect(stageEHLO, reply); err != nil {
		return err
	}

	s.caps = make(map[string]string)
	if len(reply.Lines) > 1 {
		for _, line := range reply.Lines[1:] {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			s.caps[strings.ToUpper(fields[0])] = strings.Join(fields[1:], " ")
		}
	}
	return nil
}

// startTLS upgrades the same socket in place and re-issues EHLO.
func (s *Session) startTLS(ctx context.Context) error {
	reply, err := s.cmd(stageStartTLS, "STARTTLS")
	if err != nil {
		return err
	}
	if err := expect(stageStartTLS, reply); err != nil {
		return err
	}

	tlsConn := tls.Client(s.conn, s.cfg.tlsConfig())
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return &ConnectionError{Addr: s.cfg.addr(), Err: err}
	}
	s.conn = tlsConn
	s.br = bufio.NewReader(tlsConn)

	return s.ehlo()
}

// authLogin runs the AUTH LOGIN challenge exchange: 334, base64 username,
// 334, base64 password, 235.
func (s *Session) authLogin() error {
	reply, err := s.cmd(stageAuth, "AUTH LOGIN")
	if err != nil {
		return err
	}
	if err := expect(stageAuth, reply); err != nil {
		return err
	}

	user := base64.StdEncoding.EncodeToString([]byte(s.cfg.Username))
	if reply, err = s.cmd(stageAuthUser, "%s", user); err != nil {
		return err
	}
	if err := expect(stageAuthUser, reply); err != nil {
		return err
	}

	pass := base64.StdEncoding.EncodeToString([]byte(s.cfg.Password))
	if reply, err = s.cmd(stageAuthPass, "%s", pass); err != nil {
		return err
	}
	return expect(stageAuthPass, reply)
}

// writeBody transmits the message dot-stuffed and terminated by a line
// containing only ".".
func (s *Session) writeBody(msg []byte) error {
	var b strings.Builder
	lines := strings.Split(string(msg), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(line, ".") {
			b.WriteByte('.')
		}
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	b.WriteString(".\r\n")

	s.conn.SetDeadline(time.Now().Add(s.cfg.IOTimeout))
	if _, err := s.conn.Write([]byte(b.String())); err != nil {
		return s.ioError(stageDataEnd, err)
	}
	return nil
}

func (s *Session) cmd(stage, format string, args ...interface{}) (Reply, error) {
	s.conn.SetDeadline(time.Now().Add(s.cfg.IOTimeout))
	line := fmt.Sprintf(format, args...)
	if _, err := s.conn.Write([]byte(line + "\r\n")); err != nil {
		return Reply{}, s.ioError(stage, err)
	}
	return s.read(stage)
}

func (s *Session) read(stage string) (Reply, error) {
	s.conn.SetDeadline(time.Now().Add(s.cfg.IOTimeout))
	reply, err := readReply(s.br)
	if err != nil {
		return reply, s.ioError(stage, err)
	}
	return reply, nil
}

func (s *Session) ioError(stage string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Stage: stage, Err: err}
	}
	return &ConnectionError{Addr: s.cfg.addr(), Err: fmt.Errorf("%s: %w", stage, err)}
}

// expect checks a reply against the transition table. AUTH stages map to
// AuthError, everything else to ProtocolError.
func expect(stage string, reply Reply) error {
	want := requiredCode[stage]
	if reply.Code == want {
		return nil
	}
	switch stage {
	case stageAuth, stageAuthUser, stageAuthPass:
		return &AuthError{Reply: reply}
	}
	return &ProtocolError{Stage: stage, Want: want, Reply: reply}
}
