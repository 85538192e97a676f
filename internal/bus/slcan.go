package bus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/jacobsa/go-serial/serial"

	"github.com/nerrad567/defuse-core/internal/protocol"
)

// SLCAN adapter defaults.
const (
	DefaultSerialBaud = 115200
	DefaultBitrate    = 500000
)

// slcanBitrates maps bus bitrates to the Lawicel "Sn" setup codes.
var slcanBitrates = map[int]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

const (
	slcanCR   = '\r'
	slcanBell = '\a'

	slcanReadTimeoutMs = 100

	// slcanMaxLine bounds a received line: 't' + 3 id + 1 len + 16 data + 4 timestamp.
	slcanMaxLine = 32
)

// SLCANConfig configures a serial CAN adapter.
type SLCANConfig struct {
	// PortName is the serial device, e.g. "/dev/ttyACM0".
	PortName string
	// BaudRate of the serial link. Defaults to DefaultSerialBaud.
	BaudRate uint
	// Bitrate of the CAN bus. Defaults to DefaultBitrate.
	Bitrate int
}

// SLCAN is a Transport over a USB serial CAN adapter speaking the Lawicel
// ASCII protocol. Standard 11-bit data frames map directly onto bus
// addresses.
type SLCAN struct {
	port   io.ReadWriteCloser
	logger Logger

	writeMu sync.Mutex
	recvMu  sync.RWMutex
	recv    ReceiveFunc

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup

	adapterErrors atomic.Uint64
}

// OpenSLCAN opens the serial device, configures the bitrate and opens the
// CAN channel.
func OpenSLCAN(cfg SLCANConfig, logger Logger) (*SLCAN, error) {
	if cfg.PortName == "" {
		return nil, fmt.Errorf("%w: serial port name is required", ErrAdapter)
	}
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultSerialBaud
	}

	port, err := serial.Open(serial.OpenOptions{
		PortName: cfg.PortName,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 1,
		// Reads time out so the reader notices Close.
		InterCharacterTimeout: slcanReadTimeoutMs,
		MinimumReadSize:       0,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.PortName, err)
	}

	s, err := newSLCAN(port, cfg.Bitrate, logger)
	if err != nil {
		port.Close() //nolint:errcheck // already failing
		return nil, err
	}
	return s, nil
}

func newSLCAN(port io.ReadWriteCloser, bitrate int, logger Logger) (*SLCAN, error) {
	if bitrate == 0 {
		bitrate = DefaultBitrate
	}
	code, ok := slcanBitrates[bitrate]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitrate, bitrate)
	}
	if logger == nil {
		logger = noopLogger{}
	}

	s := &SLCAN{
		port:   port,
		logger: logger,
		done:   make(chan struct{}),
	}

	// Close any channel left open by a previous run, then configure.
	for _, cmd := range [][]byte{{'C', slcanCR}, {'S', code, slcanCR}, {'O', slcanCR}} {
		if err := s.write(cmd); err != nil {
			return nil, fmt.Errorf("%w: setup %q: %w", ErrAdapter, cmd[:len(cmd)-1], err)
		}
	}

	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

// Send transmits a standard data frame.
func (s *SLCAN) Send(addr protocol.Address, data []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	line, err := encodeSLCANFrame(Frame{Address: addr, Data: data})
	if err != nil {
		return err
	}
	return s.write(line)
}

// SetReceiver registers the frame callback.
func (s *SLCAN) SetReceiver(fn ReceiveFunc) {
	s.recvMu.Lock()
	s.recv = fn
	s.recvMu.Unlock()
}

// AdapterErrors returns how many commands the adapter rejected.
func (s *SLCAN) AdapterErrors() uint64 {
	return s.adapterErrors.Load()
}

// Close closes the CAN channel and the serial port.
func (s *SLCAN) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.write([]byte{'C', slcanCR}) //nolint:errcheck // best effort before closing the port
		err = s.port.Close()
		s.wg.Wait()
	})
	return err
}

func (s *SLCAN) write(b []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.port.Write(b)
	return err
}

// readLoop splits the adapter output into lines and forwards data frames.
func (s *SLCAN) readLoop() {
	defer s.wg.Done()

	r := bufio.NewReader(s.port)
	line := make([]byte, 0, slcanMaxLine)
	for {
		b, err := r.ReadByte()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			// A read timeout surfaces as EOF on a tty.
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrNoProgress) {
				continue
			}
			s.logger.Error("slcan read failed", "error", err)
			return
		}

		switch b {
		case slcanBell:
			s.adapterErrors.Add(1)
			line = line[:0]
		case slcanCR:
			s.handleLine(line)
			line = line[:0]
		default:
			if len(line) < slcanMaxLine {
				line = append(line, b)
			}
		}
	}
}

func (s *SLCAN) handleLine(line []byte) {
	if len(line) == 0 || (line[0] != 't') {
		// Command acknowledgements ("", "z", "Z"), extended and remote frames.
		return
	}
	f, err := decodeSLCANFrame(line)
	if err != nil {
		s.logger.Debug("slcan dropping line", "line", string(line), "error", err)
		return
	}
	s.recvMu.RLock()
	recv := s.recv
	s.recvMu.RUnlock()
	if recv != nil {
		recv(f)
	}
}

// encodeSLCANFrame formats "tIIILDD..\r".
func encodeSLCANFrame(f Frame) ([]byte, error) {
	if len(f.Data) > protocol.MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLong, len(f.Data))
	}
	if !f.Address.IsValid() {
		return nil, fmt.Errorf("%w: address %d", protocol.ErrInvalidAddress, uint16(f.Address))
	}
	out := make([]byte, 0, 5+2*len(f.Data)+1)
	out = append(out, 't')
	out = append(out, fmt.Sprintf("%03X%d", uint16(f.Address), len(f.Data))...)
	for _, b := range f.Data {
		out = append(out, fmt.Sprintf("%02X", b)...)
	}
	return append(out, slcanCR), nil
}

// decodeSLCANFrame parses "tIIILDD..[TTTT]" without the trailing CR.
func decodeSLCANFrame(line []byte) (Frame, error) {
	if len(line) < 5 || line[0] != 't' {
		return Frame{}, fmt.Errorf("%w: not a standard frame: %q", ErrAdapter, line)
	}
	id, err := strconv.ParseUint(string(line[1:4]), 16, 16)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: bad id in %q", ErrAdapter, line)
	}
	addr, err := protocol.AddressFromUint16(uint16(id))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrAdapter, err)
	}
	n := int(line[4] - '0')
	if n < 0 || n > protocol.MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: bad length in %q", ErrAdapter, line)
	}
	hex := line[5:]
	if len(hex) != 2*n && len(hex) != 2*n+4 {
		return Frame{}, fmt.Errorf("%w: length %d does not match %q", ErrAdapter, n, line)
	}

	data := make([]byte, n)
	for i := range data {
		v, err := strconv.ParseUint(string(hex[2*i:2*i+2]), 16, 8)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: bad data in %q", ErrAdapter, line)
		}
		data[i] = byte(v)
	}
	return Frame{Address: addr, Data: data}, nil
}
