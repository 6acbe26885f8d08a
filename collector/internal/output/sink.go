package output

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/additionsec/as-gateway/collector/internal/config"
)

// maxSyslogMessage bounds one syslog message, header included.
const maxSyslogMessage = 65535

// Sink delivers the records of one report. Implementations are safe for
// concurrent use.
type Sink interface {
	Name() string
	Write(records [][]byte) error
	Close() error
}

// Console writes one record per line to W. Write errors are ignored.
type Console struct {
	W io.Writer

	mu sync.Mutex
}

func (*Console) Name() string { return "console" }

func (c *Console) Write(records [][]byte) error {
	buf := lines(records)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.W.Write(buf)
	return nil
}

func (*Console) Close() error { return nil }

// File appends one record per line to a file.
type File struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// OpenFile opens path for appending and writes a startup marker line.
func OpenFile(path string, now time.Time) (*File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("output: open %q: %w", path, err)
	}
	if _, err := fmt.Fprintf(f, "# Service startup %s\n", now.Format(time.DateTime)); err != nil {
		f.Close()
		return nil, fmt.Errorf("output: write %q: %w", path, err)
	}
	return &File{path: path, f: f}, nil
}

func (*File) Name() string { return "file" }

func (s *File) Write(records [][]byte) error {
	buf := lines(records)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(buf); err != nil {
		return fmt.Errorf("write %q: %w", s.path, err)
	}
	return nil
}

// lines joins records, terminating each with a newline.
func lines(records [][]byte) []byte {
	var buf []byte
	for _, rec := range records {
		buf = append(buf, rec...)
		buf = append(buf, '\n')
	}
	return buf
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// Syslog sends RFC 5424 messages over UDP or TCP. Over TCP each message is
// framed with its octet count.
type Syslog struct {
	network string // "udp" or "tcp"
	addr    string
	pri     int
	host    string
	now     func() time.Time // injectable for deterministic tests

	mu   sync.Mutex
	conn net.Conn
}

// DialSyslog connects to the receiver in c over network.
func DialSyslog(network string, c config.SyslogConfig, host string) (*Syslog, error) {
	s := &Syslog{
		network: network,
		addr:    net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		pri:     c.Facility*8 + c.Severity,
		host:    host,
		now:     time.Now,
	}
	if err := s.dial(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Syslog) Name() string { return s.network + "syslog" }

func (s *Syslog) dial() error {
	conn, err := net.DialTimeout(s.network, s.addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("output: dial %s %s: %w", s.network, s.addr, err)
	}
	s.conn = conn
	return nil
}

// header is PRI VERSION TIMESTAMP HOSTNAME APP-NAME and nil PROCID, MSGID and
// STRUCTURED-DATA.
func (s *Syslog) header() []byte {
	ts := s.now().UTC().Format("2006-01-02T15:04:05Z")
	return fmt.Appendf(nil, "<%d>1 %s %s ASGW - - - ", s.pri, ts, s.host)
}

func (s *Syslog) Write(records [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.header()
	for _, rec := range records {
		msg := append(append(make([]byte, 0, len(h)+len(rec)), h...), rec...)
		if len(msg) > maxSyslogMessage {
			return fmt.Errorf("syslog message of %d bytes exceeds %d", len(msg), maxSyslogMessage)
		}
		if s.network == "tcp" {
			frame := strconv.AppendInt(nil, int64(len(msg)), 10)
			frame = append(frame, ' ')
			msg = append(frame, msg...)
		}
		if err := s.send(msg); err != nil {
			return err
		}
	}
	return nil
}

// send writes one frame, redialling once when a stream connection broke.
func (s *Syslog) send(frame []byte) error {
	if s.conn == nil {
		if err := s.dial(); err != nil {
			return err
		}
	}
	_, err := s.conn.Write(frame)
	if err == nil || s.network != "tcp" {
		return err
	}
	slog.Warn("output: syslog connection lost, reconnecting", "addr", s.addr, "err", err)
	s.conn.Close()
	s.conn = nil
	if derr := s.dial(); derr != nil {
		return errors.Join(err, derr)
	}
	_, err = s.conn.Write(frame)
	return err
}

func (s *Syslog) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
