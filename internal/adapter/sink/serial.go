package sink

import (
	"fmt"
	"io"
	"sync"

	"github.com/berfenger/p1sim/internal/core/port"

	"go.bug.st/serial"
)

// serialPort is the subset of serial.Port the sink needs.
type serialPort interface {
	io.WriteCloser
	Drain() error
}

type serialOpener func(name string, mode *serial.Mode) (serialPort, error)

func openSerialPort(name string, mode *serial.Mode) (serialPort, error) {
	return serial.Open(name, mode)
}

// SerialSink writes telegrams to a serial line at 8N1.
// Flush blocks until the driver has transmitted the output buffer.
type SerialSink struct {
	portName string
	mode     *serial.Mode
	opener   serialOpener

	mu   sync.Mutex
	gen  uint64
	port serialPort
}

var _ port.TelegramSink = (*SerialSink)(nil)

func NewSerialSink(portName string, baudRate int) *SerialSink {
	return &SerialSink{
		portName: portName,
		mode: &serial.Mode{
			BaudRate: baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		opener: openSerialPort,
	}
}

// Open may block on the driver. A Close issued meanwhile wins: the port opened
// late is closed again and Open reports ErrClosedWhileOpening.
func (s *SerialSink) Open() error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	p, err := s.opener(s.portName, s.mode)
	if err != nil {
		return fmt.Errorf("serial sink: failed to open %s: %w", s.portName, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		_ = p.Close()
		return fmt.Errorf("serial sink: %s: %w", s.portName, ErrClosedWhileOpening)
	}
	s.port = p
	return nil
}

func (s *SerialSink) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return ErrNotOpen
	}
	for len(frame) > 0 {
		n, err := s.port.Write(frame)
		if err != nil {
			return fmt.Errorf("serial sink: write: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("serial sink: write: %w", io.ErrShortWrite)
		}
		frame = frame[n:]
	}
	return nil
}

func (s *SerialSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return ErrNotOpen
	}
	return s.port.Drain()
}

func (s *SerialSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
