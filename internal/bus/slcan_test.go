package bus

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/defuse-core/internal/protocol"
)

func TestEncodeSLCANFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{"strike update broadcast", Frame{Address: protocol.BroadcastAddress, Data: []byte{0x00, 0x00, 0x12, 0x02}}, "t7E0400001202\r"},
		{"empty", Frame{Address: 0x201, Data: nil}, "t2010\r"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeSLCANFrame(tt.frame)
			if err != nil {
				t.Fatalf("encodeSLCANFrame() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("encodeSLCANFrame() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := encodeSLCANFrame(Frame{Address: 0x201, Data: make([]byte, 9)}); !errors.Is(err, ErrFrameTooLong) {
		t.Errorf("encodeSLCANFrame(9 bytes) error = %v, want ErrFrameTooLong", err)
	}
}

func TestDecodeSLCANFrame(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Frame
		wantErr bool
	}{
		{name: "plain", line: "t20130001A1", want: Frame{Address: 0x201, Data: []byte{0x00, 0x1A, 0x01}}},
		{name: "with timestamp", line: "t0002120212AB", want: Frame{Address: 0x000, Data: []byte{0x12, 0x02}}},
		{name: "empty data", line: "t7E00", want: Frame{Address: 0x7E0, Data: []byte{}}},
		{name: "id beyond 11 bits", line: "tFFF0", wantErr: true},
		{name: "length mismatch", line: "t201300", wantErr: true},
		{name: "bad length", line: "t2019", wantErr: true},
		{name: "bad hex", line: "t2011ZZ", wantErr: true},
		{name: "extended frame", line: "T0000020100", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeSLCANFrame([]byte(tt.line))
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeSLCANFrame(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Address != tt.want.Address || !bytes.Equal(got.Data, tt.want.Data) {
				t.Errorf("decodeSLCANFrame(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

// fakeSerial is an in-memory serial port: writes are captured, reads come
// from a pipe the test feeds.
type fakeSerial struct {
	mu      sync.Mutex
	written bytes.Buffer
	r       *io.PipeReader
	w       *io.PipeWriter
}

func newFakeSerial() *fakeSerial {
	r, w := io.Pipe()
	return &fakeSerial{r: r, w: w}
}

func (f *fakeSerial) Read(p []byte) (int, error) { return f.r.Read(p) }

func (f *fakeSerial) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.Write(p)
}

func (f *fakeSerial) Close() error { return f.r.Close() }

func (f *fakeSerial) output() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.String()
}

func TestSLCANSetupSendReceive(t *testing.T) {
	port := newFakeSerial()
	s, err := newSLCAN(port, 500000, nil)
	if err != nil {
		t.Fatalf("newSLCAN() error = %v", err)
	}

	frames := make(chan Frame, 1)
	s.SetReceiver(func(f Frame) { frames <- f })

	if err := s.Send(protocol.TimerAddress, []byte{0x10, 0x01, 0x01}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got, want := port.output(), "C\rS6\rO\rt0003100101\r"; got != want {
		t.Errorf("adapter output = %q, want %q", got, want)
	}

	// Ack, an adapter error, then a data frame.
	go port.w.Write([]byte("z\r\at7E0100\r")) //nolint:errcheck // test feed

	select {
	case f := <-frames:
		if f.Address != protocol.BroadcastAddress || !bytes.Equal(f.Data, []byte{0x00}) {
			t.Errorf("received %v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
	if s.AdapterErrors() != 1 {
		t.Errorf("AdapterErrors() = %d, want 1", s.AdapterErrors())
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Send(protocol.TimerAddress, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
}

func TestNewSLCANRejectsBitrate(t *testing.T) {
	if _, err := newSLCAN(newFakeSerial(), 123, nil); !errors.Is(err, ErrUnsupportedBitrate) {
		t.Errorf("newSLCAN() error = %v, want ErrUnsupportedBitrate", err)
	}
}
