package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"
	"lautenbacher.net/gospidev/spidev"
)

const CONFILE = "spidev.yml"

// Config is the content of a device profile file.
type Config struct {
	Devices map[string]DeviceConfig `yaml:"Devices"`
	Logging LoggingConfig           `yaml:"Logging"`
}

// DeviceConfig describes one spidev device. Settings that are left out are
// not written to the driver.
type DeviceConfig struct {
	Path        string   `yaml:"Path"`
	BitsPerWord *uint8   `yaml:"BitsPerWord,omitempty"`
	MaxSpeedHz  *uint32  `yaml:"MaxSpeedHz,omitempty"`
	Mode        *int     `yaml:"Mode,omitempty"`
	Flags       []string `yaml:"Flags,omitempty"`
	LSBFirst    *bool    `yaml:"LSBFirst,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

// ReadConfig reads and validates the profile file cfile.
func ReadConfig(cfile string) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	var conf Config
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&conf); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return &conf, nil
}

// Validate checks the whole configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Devices) == 0 {
		errs = append(errs, errors.New("at least one device must be configured"))
	}
	for _, name := range c.DeviceNames() {
		if err := c.Devices[name].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", name, err))
		}
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	return errors.Join(errs...)
}

// DeviceNames returns the configured device names in sorted order.
func (c *Config) DeviceNames() []string {
	names := maps.Keys(c.Devices)
	slices.Sort(names)
	return names
}

func (d DeviceConfig) Validate() error {
	if d.Path == "" {
		return errors.New("Path must be set")
	}
	if d.BitsPerWord != nil && *d.BitsPerWord > 32 {
		return fmt.Errorf("BitsPerWord %d must be between 0 and 32", *d.BitsPerWord)
	}
	if d.Mode != nil && (*d.Mode < 0 || *d.Mode > 3) {
		return fmt.Errorf("Mode %d must be between 0 and 3", *d.Mode)
	}
	_, err := d.Options()
	return err
}

// Options converts the device settings into spidev options.
func (d DeviceConfig) Options() (spidev.Options, error) {
	o := spidev.NewOptions()
	if d.Mode != nil {
		o = o.WithMode(spidev.Mode(*d.Mode))
	}
	if d.Flags != nil {
		flags, err := spidev.ParseMode(strings.Join(d.Flags, "|"))
		if err != nil {
			return spidev.Options{}, err
		}
		if flags.Base() != spidev.Mode0 {
			return spidev.Options{}, errors.New("Flags must not contain a clock mode, use Mode instead")
		}
		o = o.WithFlags(flags)
	}
	if d.MaxSpeedHz != nil {
		o = o.WithMaxSpeedHz(*d.MaxSpeedHz)
	}
	if d.BitsPerWord != nil {
		o = o.WithBitsPerWord(*d.BitsPerWord)
	}
	if d.LSBFirst != nil {
		o = o.WithLSBFirst(*d.LSBFirst)
	}
	return o, nil
}

func (l LoggingConfig) Validate() error {
	switch strings.ToUpper(l.Level) {
	case "", "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("unknown Level %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown Format %q", l.Format)
	}
	return nil
}
