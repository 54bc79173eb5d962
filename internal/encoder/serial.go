package encoder

import (
	"fmt"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

// The bridge firmware answers a single poll byte with an echo followed by
// both frames, big-endian, latitude first:
//
//	'p' lat_hi lat_lo lon_hi lon_lo
const (
	bridgePoll     = 'p'
	bridgeRespSize = 5
)

// SerialConfig configures the microcontroller bridge.
type SerialConfig struct {
	PortPath string        `yaml:"port_path" json:"portPath"`
	BaudRate int           `yaml:"baud_rate" json:"baudRate"`
	Timeout  time.Duration `yaml:"-" json:"-"`
}

// SerialProvider polls both encoders through a UART bridge for hosts
// without a usable SPI bus.
type SerialProvider struct {
	cfg SerialConfig

	mu        sync.Mutex
	port      serial.Port
	connected bool
}

// NewSerial creates a serial bridge provider.
func NewSerial(cfg SerialConfig) *SerialProvider {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 150 * time.Millisecond
	}
	return &SerialProvider{cfg: cfg}
}

func (s *SerialProvider) Name() string { return "Serial encoder bridge" }

func (s *SerialProvider) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := &serial.Mode{
		BaudRate: s.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.cfg.PortPath, mode)
	if err != nil {
		return fmt.Errorf("bridge: failed to open %s: %w", s.cfg.PortPath, err)
	}
	if err := port.SetReadTimeout(s.cfg.Timeout); err != nil {
		port.Close()
		return fmt.Errorf("bridge: set timeout: %w", err)
	}
	s.port = port

	// Probe once so a wrong port fails here instead of on every poll.
	if _, _, err := s.poll(); err != nil {
		s.port.Close()
		s.port = nil
		return fmt.Errorf("bridge: probe: %w", err)
	}

	s.connected = true
	log.Printf("[encoder] bridge connected to %s at %d baud", s.cfg.PortPath, s.cfg.BaudRate)
	return nil
}

func (s *SerialProvider) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.port != nil {
		err := s.port.Close()
		s.port = nil
		return err
	}
	return nil
}

func (s *SerialProvider) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *SerialProvider) ReadFrames() (Frame, Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected || s.port == nil {
		return 0, 0, fmt.Errorf("bridge: not connected")
	}
	return s.poll()
}

func (s *SerialProvider) poll() (Frame, Frame, error) {
	s.port.ResetInputBuffer()

	if _, err := s.port.Write([]byte{bridgePoll}); err != nil {
		return 0, 0, fmt.Errorf("bridge: write failed: %w", err)
	}

	resp := make([]byte, bridgeRespSize)
	if err := s.readExact(resp, s.cfg.Timeout); err != nil {
		return 0, 0, fmt.Errorf("bridge: %w", err)
	}
	return decodeBridge(resp)
}

func decodeBridge(resp []byte) (Frame, Frame, error) {
	if len(resp) != bridgeRespSize {
		return 0, 0, fmt.Errorf("bridge: response is %d bytes, want %d", len(resp), bridgeRespSize)
	}
	if resp[0] != bridgePoll {
		return 0, 0, fmt.Errorf("bridge: unexpected echo: got 0x%02X, want 0x%02X", resp[0], bridgePoll)
	}
	lat := Frame(uint16(resp[1])<<8 | uint16(resp[2]))
	lon := Frame(uint16(resp[3])<<8 | uint16(resp[4]))
	return lat, lon, nil
}

// readExact reads exactly len(buf) bytes from the port within the deadline.
func (s *SerialProvider) readExact(buf []byte, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	got := 0
	for got < len(buf) && time.Now().Before(deadline) {
		n, err := s.port.Read(buf[got:])
		if err != nil && n == 0 {
			return fmt.Errorf("read error after %d/%d bytes: %w", got, len(buf), err)
		}
		got += n
	}
	if got < len(buf) {
		return fmt.Errorf("incomplete: got %d bytes, want %d", got, len(buf))
	}
	return nil
}
