package spi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrHelp = errors.New("spi: help requested")

const (
	LinkSpidev   = "spidev"
	LinkEmulator = "emulator"
)

type Config struct {
	Device    string
	SpeedHz   uint32
	Mode      uint8
	ResetGPIO int
	ResetTime time.Duration
	Link      string
}

func DefaultConfig() *Config {
	return &Config{
		Device:    "/dev/spidev0.0",
		SpeedHz:   10000000,
		Mode:      0,
		ResetGPIO: -1,
		ResetTime: 50 * time.Millisecond,
		Link:      LinkSpidev,
	}
}

func Usage() string {
	return `spi transport options (comma separated key=value):
	dev=<path>         spidev device (default /dev/spidev0.0)
	speed=<hz>         clock rate, k and m suffixes allowed (default 10m)
	mode=<0-3>         spi mode (default 0)
	reset_gpio=<pin>   sysfs gpio wired to the chip reset line
	reset_ms=<ms>      reset pulse length (default 50)
	link=<name>        spidev or emulator
`
}

func parseHz(val string) (uint32, error) {
	multiplier := uint64(1)
	s := strings.Trim(strings.ToLower(val), " \t\r\n")
	s = strings.TrimSuffix(s, "hz")
	if s == "" {
		return 0, fmt.Errorf("empty speed")
	}

	suffix := s[len(s)-1:]
	switch suffix {
	case "k":
		multiplier = 1000
		s = s[:len(s)-1]
	case "m":
		multiplier = 1000 * 1000
		s = s[:len(s)-1]
	}

	i, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	hz := i * multiplier
	if hz == 0 || hz > 0xffffffff {
		return 0, fmt.Errorf("speed %s out of range", val)
	}
	return uint32(hz), nil
}

// ParseConfig reads a comma separated key=value list on top of the defaults.
func ParseConfig(s string) (*Config, error) {
	conf := DefaultConfig()
	s = strings.TrimSpace(s)
	if s == "" {
		return conf, nil
	}

	for _, opt := range strings.Split(s, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		if opt == "help" {
			return nil, ErrHelp
		}
		key, val, ok := strings.Cut(opt, "=")
		if !ok {
			return nil, fmt.Errorf("spi: option %q needs a value", opt)
		}
		var err error
		switch key {
		case "dev":
			conf.Device = val
		case "speed":
			conf.SpeedHz, err = parseHz(val)
		case "mode":
			var m uint64
			m, err = strconv.ParseUint(val, 10, 8)
			if err == nil && m > 3 {
				err = fmt.Errorf("mode %d out of range", m)
			}
			conf.Mode = uint8(m)
		case "reset_gpio":
			conf.ResetGPIO, err = strconv.Atoi(val)
		case "reset_ms":
			var ms int
			ms, err = strconv.Atoi(val)
			if err == nil && ms <= 0 {
				err = fmt.Errorf("reset time %dms out of range", ms)
			}
			conf.ResetTime = time.Duration(ms) * time.Millisecond
		case "link":
			if val != LinkSpidev && val != LinkEmulator {
				err = fmt.Errorf("unknown link %q", val)
			}
			conf.Link = val
		default:
			err = fmt.Errorf("unknown option")
		}
		if err != nil {
			return nil, fmt.Errorf("spi: option %q: %w", key, err)
		}
	}
	return conf, nil
}
