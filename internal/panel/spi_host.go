package panel

import (
	"fmt"
	"io"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// HostConfig names the host SPI port and control pins.
type HostConfig struct {
	Port     string
	DCPin    string
	ResetPin string
	SpeedHz  int64
	Panel    SPIConfig
}

// OpenSPI initialises the host drivers and returns an SPI panel on the
// named port. Closing the returned io.Closer releases the port.
func OpenSPI(cfg HostConfig) (*SPI, io.Closer, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}

	port, err := spireg.Open(cfg.Port)
	if err != nil {
		return nil, nil, fmt.Errorf("open spi port %q: %w", cfg.Port, err)
	}

	speed := cfg.SpeedHz
	if speed <= 0 {
		speed = 40_000_000
	}
	conn, err := port.Connect(physic.Frequency(speed)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("connect spi port %q: %w", cfg.Port, err)
	}

	dc := gpioreg.ByName(cfg.DCPin)
	if dc == nil {
		port.Close()
		return nil, nil, fmt.Errorf("dc pin %q not found", cfg.DCPin)
	}
	var rst Pin
	if cfg.ResetPin != "" {
		p := gpioreg.ByName(cfg.ResetPin)
		if p == nil {
			port.Close()
			return nil, nil, fmt.Errorf("reset pin %q not found", cfg.ResetPin)
		}
		rst = p
	}

	if max, ok := conn.(interface{ MaxTxSize() int }); ok && cfg.Panel.ChunkSize == 0 {
		cfg.Panel.ChunkSize = max.MaxTxSize()
	}
	return NewSPI(conn, dc, rst, cfg.Panel), port, nil
}
