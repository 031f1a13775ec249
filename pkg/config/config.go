package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
)

// Schema is the wlanctl configuration file.
type Schema struct {
	Transport   string     `hcl:"transport,optional"`
	Interface   string     `hcl:"interface,optional"`
	Config      string     `hcl:"config,optional"`
	Debug       bool       `hcl:"debug,optional"`
	MetricsFile string     `hcl:"metrics_file,optional"`
	SPI         *SPISchema `hcl:"spi,block"`
}

// SPISchema describes the spi backend as a block instead of a config string.
type SPISchema struct {
	Device    string `hcl:"dev,optional"`
	Speed     string `hcl:"speed,optional"`
	Mode      int    `hcl:"mode,optional"`
	ResetGPIO string `hcl:"reset_gpio,optional"`
	ResetMS   int    `hcl:"reset_ms,optional"`
	Link      string `hcl:"link,optional"`
}

func ReadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	s := new(Schema)
	return s, s.Decode(data)
}

func (s *Schema) Decode(data []byte) error {
	file, diag := hclsyntax.ParseConfig(data, "", hcl.Pos{Line: 1, Column: 1})
	if diag.HasErrors() {
		return diag.Errs()[0]
	}

	diag = gohcl.DecodeBody(file.Body, nil, s)
	if diag.HasErrors() {
		return diag.Errs()[0]
	}

	return nil
}

func (s *Schema) Encode() []byte {
	f := hclwrite.NewEmptyFile()
	gohcl.EncodeIntoBody(s, f.Body())
	return f.Bytes()
}

// String renders the block in the key=value form the spi backend parses.
func (ss *SPISchema) String() string {
	var parts []string
	add := func(k string, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("dev", ss.Device)
	add("speed", ss.Speed)
	if ss.Mode != 0 {
		add("mode", strconv.Itoa(ss.Mode))
	}
	add("reset_gpio", ss.ResetGPIO)
	if ss.ResetMS != 0 {
		add("reset_ms", strconv.Itoa(ss.ResetMS))
	}
	add("link", ss.Link)
	return strings.Join(parts, ",")
}

// BackendConfig returns the configuration string for the selected transport.
// An explicit config attribute wins over the spi block.
func (s *Schema) BackendConfig() string {
	if s.Config != "" || s.SPI == nil {
		return s.Config
	}
	return s.SPI.String()
}

// Override applies command line values on top of the file. Empty strings leave
// the file value in place.
func (s *Schema) Override(transport string, iface string, config string, debug bool, metricsFile string) {
	if transport != "" {
		s.Transport = transport
	}
	if iface != "" {
		s.Interface = iface
	}
	if config != "" {
		s.Config = config
	}
	if metricsFile != "" {
		s.MetricsFile = metricsFile
	}
	s.Debug = s.Debug || debug
}
