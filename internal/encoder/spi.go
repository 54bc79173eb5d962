package encoder

import (
	"fmt"
	"log"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SPIConfig holds the chip-select devices for the two encoders.
type SPIConfig struct {
	LatDevice string `yaml:"lat_device" json:"latDevice"` // e.g. /dev/spidev0.0
	LonDevice string `yaml:"lon_device" json:"lonDevice"` // e.g. /dev/spidev0.1
	SpeedHz   int    `yaml:"speed_hz" json:"speedHz"`
}

// SPIProvider reads both encoders over SPI mode 1, two bytes per frame.
type SPIProvider struct {
	cfg SPIConfig

	mu        sync.Mutex
	ports     []spi.PortCloser
	lat, lon  spi.Conn
	connected bool
}

// NewSPI creates an SPI provider. The encoders are slow parts; the default
// clock is 5 kHz.
func NewSPI(cfg SPIConfig) *SPIProvider {
	if cfg.SpeedHz <= 0 {
		cfg.SpeedHz = 5000
	}
	return &SPIProvider{cfg: cfg}
}

func (s *SPIProvider) Name() string { return "SPI encoders" }

func (s *SPIProvider) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("spi: host init: %w", err)
	}

	lat, err := s.open(s.cfg.LatDevice)
	if err != nil {
		s.closeLocked()
		return err
	}
	lon, err := s.open(s.cfg.LonDevice)
	if err != nil {
		s.closeLocked()
		return err
	}
	s.lat, s.lon = lat, lon
	s.connected = true
	log.Printf("[encoder] SPI connected: lat=%s lon=%s at %d Hz", s.cfg.LatDevice, s.cfg.LonDevice, s.cfg.SpeedHz)
	return nil
}

func (s *SPIProvider) open(dev string) (spi.Conn, error) {
	p, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("spi: open %s: %w", dev, err)
	}
	s.ports = append(s.ports, p)
	c, err := p.Connect(physic.Frequency(s.cfg.SpeedHz)*physic.Hertz, spi.Mode1, 8)
	if err != nil {
		return nil, fmt.Errorf("spi: configure %s: %w", dev, err)
	}
	return c, nil
}

func (s *SPIProvider) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *SPIProvider) closeLocked() error {
	var first error
	for _, p := range s.ports {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.ports = nil
	s.lat, s.lon = nil, nil
	s.connected = false
	return first
}

func (s *SPIProvider) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *SPIProvider) ReadFrames() (Frame, Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return 0, 0, fmt.Errorf("spi: not connected")
	}
	lat, err := readFrame(s.lat)
	if err != nil {
		return 0, 0, fmt.Errorf("spi: lat: %w", err)
	}
	lon, err := readFrame(s.lon)
	if err != nil {
		return 0, 0, fmt.Errorf("spi: lon: %w", err)
	}
	return lat, lon, nil
}

func readFrame(c spi.Conn) (Frame, error) {
	w := make([]byte, 2)
	r := make([]byte, 2)
	if err := c.Tx(w, r); err != nil {
		return 0, err
	}
	return Frame(uint16(r[0])<<8 | uint16(r[1])), nil
}
