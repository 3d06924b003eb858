package sink

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/berfenger/p1sim/internal/core/port"
)

var (
	ErrNotOpen = errors.New("sink is not open")
	// ErrClosedWhileOpening is returned by Open when Close ran before the device became ready.
	ErrClosedWhileOpening = errors.New("sink closed while opening")
)

// WriterSink buffers telegrams for a stream such as stdout or an append-only file.
type WriterSink struct {
	open   func() (io.Writer, io.Closer, error)
	buffer *bufio.Writer
	closer io.Closer
}

var _ port.TelegramSink = (*WriterSink)(nil)

// NewWriterSink writes to out and never closes it.
func NewWriterSink(out io.Writer) *WriterSink {
	return &WriterSink{
		open: func() (io.Writer, io.Closer, error) {
			return out, nil, nil
		},
	}
}

// NewFileSink appends telegrams to the file at path, creating it if needed.
func NewFileSink(path string) *WriterSink {
	return &WriterSink{
		open: func() (io.Writer, io.Closer, error) {
			file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, nil, err
			}
			return file, file, nil
		},
	}
}

func (s *WriterSink) Open() error {
	out, closer, err := s.open()
	if err != nil {
		return err
	}
	s.buffer = bufio.NewWriter(out)
	s.closer = closer
	return nil
}

func (s *WriterSink) Write(frame []byte) error {
	if s.buffer == nil {
		return ErrNotOpen
	}
	_, err := s.buffer.Write(frame)
	return err
}

func (s *WriterSink) Flush() error {
	if s.buffer == nil {
		return ErrNotOpen
	}
	return s.buffer.Flush()
}

func (s *WriterSink) Close() error {
	if s.buffer == nil {
		return nil
	}
	err := s.buffer.Flush()
	s.buffer = nil
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
		s.closer = nil
	}
	return err
}
