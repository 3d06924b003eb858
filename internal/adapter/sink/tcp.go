package sink

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/berfenger/p1sim/internal/core/port"
)

// TCPSink streams telegrams to a TCP endpoint, like a P1 to ethernet bridge.
type TCPSink struct {
	address string
	timeout time.Duration

	mu     sync.Mutex
	gen    uint64
	conn   net.Conn
	buffer *bufio.Writer
}

var _ port.TelegramSink = (*TCPSink)(nil)

func NewTCPSink(address string, timeout time.Duration) *TCPSink {
	return &TCPSink{
		address: address,
		timeout: timeout,
	}
}

func (s *TCPSink) Open() error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	conn, err := net.DialTimeout("tcp", s.address, s.timeout)
	if err != nil {
		return fmt.Errorf("tcp sink: dial %s: %w", s.address, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		_ = conn.Close()
		return fmt.Errorf("tcp sink: %s: %w", s.address, ErrClosedWhileOpening)
	}
	s.conn = conn
	s.buffer = bufio.NewWriter(conn)
	return nil
}

func (s *TCPSink) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotOpen
	}
	_, err := s.buffer.Write(frame)
	return err
}

func (s *TCPSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotOpen
	}
	if s.timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
			return err
		}
	}
	return s.buffer.Flush()
}

func (s *TCPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.buffer = nil
	return err
}
