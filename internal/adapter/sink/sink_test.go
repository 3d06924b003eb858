package sink

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/berfenger/p1sim/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

var frame = []byte("/SIMULATOR\r\n\r\n0-0:96.14.0(0002)\r\n!ABCD\r\n")

func TestWriterSinkBuffersUntilFlush(t *testing.T) {

	require := require.New(t)

	var out bytes.Buffer
	s := NewWriterSink(&out)

	require.ErrorIs(s.Write(frame), ErrNotOpen)
	require.NoError(s.Open())
	require.NoError(s.Write(frame))
	require.Equal(0, out.Len(), "nothing written before flush")
	require.NoError(s.Flush())
	require.Equal(frame, out.Bytes())
	require.NoError(s.Close())
	require.NoError(s.Close())
}

func TestFileSinkAppends(t *testing.T) {

	require := require.New(t)

	path := filepath.Join(t.TempDir(), "telegrams.txt")

	for i := 0; i < 2; i++ {
		s := NewFileSink(path)
		require.NoError(s.Open())
		require.NoError(s.Write(frame))
		require.NoError(s.Flush())
		require.NoError(s.Close())
	}

	content, err := os.ReadFile(path)
	require.NoError(err)
	require.Equal(append(append([]byte{}, frame...), frame...), content)
}

func TestFileSinkOpenFails(t *testing.T) {
	s := NewFileSink(filepath.Join(t.TempDir(), "missing", "dir", "telegrams.txt"))
	assert.Error(t, s.Open())
}

type fakeSerialPort struct {
	written  bytes.Buffer
	chunk    int
	drained  int
	closed   bool
	writeErr error
}

func (p *fakeSerialPort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	n := len(b)
	if p.chunk > 0 && n > p.chunk {
		n = p.chunk
	}
	p.written.Write(b[:n])
	return n, nil
}

func (p *fakeSerialPort) Drain() error {
	p.drained++
	return nil
}

func (p *fakeSerialPort) Close() error {
	p.closed = true
	return nil
}

func TestSerialSink(t *testing.T) {

	require := require.New(t)

	fake := &fakeSerialPort{chunk: 7}
	var openedWith *serial.Mode
	s := NewSerialSink("/dev/ttyUSB0", 115200)
	s.opener = func(name string, mode *serial.Mode) (serialPort, error) {
		require.Equal("/dev/ttyUSB0", name)
		openedWith = mode
		return fake, nil
	}

	require.NoError(s.Open())
	require.Equal(115200, openedWith.BaudRate)
	require.Equal(8, openedWith.DataBits)
	require.Equal(serial.NoParity, openedWith.Parity)
	require.Equal(serial.OneStopBit, openedWith.StopBits)

	require.NoError(s.Write(frame))
	require.NoError(s.Flush())
	require.Equal(frame, fake.written.Bytes(), "short writes are retried")
	require.Equal(1, fake.drained)

	require.NoError(s.Close())
	require.True(fake.closed)
	require.ErrorIs(s.Flush(), ErrNotOpen)
}

func TestSerialSinkErrors(t *testing.T) {

	assert := assert.New(t)

	s := NewSerialSink("/dev/ttyUSB9", 115200)
	s.opener = func(string, *serial.Mode) (serialPort, error) {
		return nil, errors.New("no such device")
	}
	assert.Error(s.Open())

	s.opener = func(string, *serial.Mode) (serialPort, error) {
		return &fakeSerialPort{writeErr: io.ErrClosedPipe}, nil
	}
	assert.NoError(s.Open())
	assert.ErrorIs(s.Write(frame), io.ErrClosedPipe)
}

func TestSerialSinkCloseDuringOpen(t *testing.T) {

	require := require.New(t)

	fake := &fakeSerialPort{}
	release := make(chan struct{})
	entered := make(chan struct{})
	s := NewSerialSink("/dev/ttyUSB0", 115200)
	s.opener = func(string, *serial.Mode) (serialPort, error) {
		close(entered)
		<-release
		return fake, nil
	}

	opened := make(chan error, 1)
	go func() {
		opened <- s.Open()
	}()

	<-entered
	require.NoError(s.Close())
	close(release)

	select {
	case err := <-opened:
		require.ErrorIs(err, ErrClosedWhileOpening)
	case <-time.After(2 * time.Second):
		t.Fatal("open did not return")
	}
	require.True(fake.closed, "late port is closed")
	require.ErrorIs(s.Write(frame), ErrNotOpen)

	// a fresh open after close still works
	s.opener = func(string, *serial.Mode) (serialPort, error) {
		return &fakeSerialPort{}, nil
	}
	require.NoError(s.Open())
	require.NoError(s.Write(frame))
}

func TestTCPSink(t *testing.T) {

	require := require.New(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	defer listener.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf, _ := io.ReadAll(conn)
		received <- buf
	}()

	s := NewTCPSink(listener.Addr().String(), time.Second)
	require.NoError(s.Open())
	require.NoError(s.Write(frame))
	require.NoError(s.Flush())
	require.NoError(s.Write(frame))
	require.NoError(s.Flush())
	require.NoError(s.Close())

	select {
	case buf := <-received:
		require.Equal(append(append([]byte{}, frame...), frame...), buf)
	case <-time.After(2 * time.Second):
		t.Fatal("tcp peer did not receive telegrams")
	}
}

func TestTCPSinkOpenFails(t *testing.T) {

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := listener.Addr().String()
	listener.Close()

	s := NewTCPSink(address, 200*time.Millisecond)
	assert.Error(t, s.Open())
}

func TestNewFromConfig(t *testing.T) {

	assert := assert.New(t)

	s, err := NewFromConfig(config.SinkConfig{Type: config.SINK_TYPE_STDOUT}, io.Discard)
	assert.NoError(err)
	assert.IsType(&WriterSink{}, s)

	s, err = NewFromConfig(config.SinkConfig{Type: config.SINK_TYPE_FILE, File: config.FileSinkConfig{Path: "x"}}, io.Discard)
	assert.NoError(err)
	assert.IsType(&WriterSink{}, s)

	s, err = NewFromConfig(config.SinkConfig{Type: config.SINK_TYPE_SERIAL, Serial: config.SerialSinkConfig{Port: "/dev/ttyS0", BaudRate: 115200}}, io.Discard)
	assert.NoError(err)
	assert.IsType(&SerialSink{}, s)

	s, err = NewFromConfig(config.SinkConfig{Type: config.SINK_TYPE_TCP, TCP: config.TCPSinkConfig{Address: "127.0.0.1:2000"}}, io.Discard)
	assert.NoError(err)
	assert.IsType(&TCPSink{}, s)

	_, err = NewFromConfig(config.SinkConfig{Type: "pigeon"}, io.Discard)
	assert.Error(err)
}
