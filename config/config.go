// Package config reads the YAML document describing the simulated radios,
// the links between them and how the medium runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/romshark/hwsim-medium/hwsim"
	"github.com/romshark/hwsim-medium/ring"
	"github.com/romshark/hwsim-medium/topology"
)

const (
	DefaultSNR        = 30
	DefaultNoiseFloor = -91
	DefaultQueueSize  = 1024
	DefaultDevice     = "/dev/phy%d"
	DefaultChannels   = 1
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Radios []Radio `yaml:"radios"`
	Links  []Link  `yaml:"links"`
	Medium Medium  `yaml:"medium"`
	Ring   Ring    `yaml:"ring"`
	Log    Log     `yaml:"log"`
}

type Radio struct {
	ID               uint32    `yaml:"id"`
	Name             string    `yaml:"name"`
	PermAddr         hwsim.MAC `yaml:"perm-addr"`
	HWAddr           hwsim.MAC `yaml:"hw-addr"` // Optional, defaults to perm-addr.
	Channels         uint32    `yaml:"channels"`
	SupportP2PDevice bool      `yaml:"support-p2p-device"`
	UseChanctx       bool      `yaml:"use-chanctx"`
	DestroyOnClose   bool      `yaml:"destroy-on-close"`
	NoVIF            bool      `yaml:"no-vif"`
	Netns            string    `yaml:"netns"` // "" = fresh anonymous namespace.
}

type Link struct {
	Src    uint32 `yaml:"src"`
	Dst    uint32 `yaml:"dst"`
	Mutual bool   `yaml:"mutual"`
}

type Medium struct {
	SNR        *int32 `yaml:"snr"`
	NoiseFloor *int32 `yaml:"noise-floor"`
	QueueSize  int    `yaml:"queue-size"`
	MaxPPS     uint64 `yaml:"max-pps"` // 0 = unlimited.
	// Isolate runs every radio in its own network namespace.
	// Defaults to true.
	Isolate *bool `yaml:"isolate"`
}

type Ring struct {
	// Enabled selects shared memory delivery. Defaults to true.
	Enabled    *bool   `yaml:"enabled"`
	Device     string  `yaml:"device"` // Formatted with the radio index.
	// Order defaults to ring.DefaultOrder. An explicit 0 is rejected since
	// one page cannot hold both halves.
	Order      *uint   `yaml:"order"`
	RxFraction float64 `yaml:"rx-fraction"`
	MaxRecord  int     `yaml:"max-record"`
}

type Log struct {
	Level    string   `yaml:"level"`
	Format   string   `yaml:"format"` // console or json.
	Outputs  []string `yaml:"outputs"`
	Rotation Rotation `yaml:"rotation"`
}

type Rotation struct {
	Enable     bool   `yaml:"enable"`
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML document.
func Parse(b []byte) (*Config, error) {
	var conf Config
	if err := yaml.Unmarshal(b, &conf); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if err := conf.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *Config) ValidateAndSetDefaults() error {
	if len(c.Radios) == 0 {
		return fmt.Errorf("%w: no radios", ErrInvalid)
	}
	for i := range c.Radios {
		r := &c.Radios[i]
		if r.Name == "" {
			r.Name = fmt.Sprintf("radio%d", r.ID)
		}
		if r.Channels == 0 {
			r.Channels = DefaultChannels
		}
		if r.PermAddr.IsZero() {
			return fmt.Errorf("%w: radios[%d].perm-addr must be set", ErrInvalid, i)
		}
	}
	if err := c.Medium.validateAndSetDefaults(); err != nil {
		return err
	}
	if err := c.Ring.validateAndSetDefaults(); err != nil {
		return err
	}
	c.Log.setDefaults()
	// Catch topology errors (duplicates, dangling links) at load time.
	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (m *Medium) validateAndSetDefaults() error {
	if m.SNR == nil {
		v := int32(DefaultSNR)
		m.SNR = &v
	}
	if m.NoiseFloor == nil {
		v := int32(DefaultNoiseFloor)
		m.NoiseFloor = &v
	}
	if m.QueueSize == 0 {
		m.QueueSize = DefaultQueueSize
	}
	if m.QueueSize < 0 {
		return fmt.Errorf("%w: medium.queue-size must be > 0", ErrInvalid)
	}
	if m.Isolate == nil {
		v := true
		m.Isolate = &v
	}
	return nil
}

func (r *Ring) validateAndSetDefaults() error {
	if r.Enabled == nil {
		v := true
		r.Enabled = &v
	}
	if r.Device == "" {
		r.Device = DefaultDevice
	}
	if !strings.Contains(r.Device, "%d") {
		return fmt.Errorf("%w: ring.device %q has no %%d for the radio index", ErrInvalid, r.Device)
	}
	if r.Order != nil && *r.Order == 0 {
		return fmt.Errorf("%w: ring.order must be at least 1", ErrInvalid)
	}
	rc := r.Config()
	if err := rc.ValidateAndSetDefaults(); err != nil {
		return fmt.Errorf("%w: ring: %w", ErrInvalid, err)
	}
	r.Order, r.RxFraction, r.MaxRecord = &rc.Order, rc.RxFraction, rc.MaxRecord
	return nil
}

func (l *Log) setDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "console"
	}
	if len(l.Outputs) == 0 {
		l.Outputs = []string{"stderr"}
	}
}

// Config returns the mapping parameters. PageSize is left to the system
// default.
func (r Ring) Config() ring.Config {
	var order uint
	if r.Order != nil {
		order = *r.Order
	}
	return ring.Config{
		Order:      order,
		RxFraction: r.RxFraction,
		MaxRecord:  r.MaxRecord,
	}
}

// Registry builds the validated topology.
func (c *Config) Registry() (*topology.Registry, error) {
	radios := make([]topology.Radio, len(c.Radios))
	for i, r := range c.Radios {
		radios[i] = topology.Radio{
			ID:               topology.RadioID(r.ID),
			Name:             r.Name,
			PermAddr:         r.PermAddr,
			HWAddr:           r.HWAddr,
			Channels:         r.Channels,
			SupportP2PDevice: r.SupportP2PDevice,
			UseChanctx:       r.UseChanctx,
			DestroyOnClose:   r.DestroyOnClose,
			NoVIF:            r.NoVIF,
			Netns:            r.Netns,
		}
	}
	links := make([]topology.Link, len(c.Links))
	for i, l := range c.Links {
		links[i] = topology.Link{
			Src:    topology.RadioID(l.Src),
			Dst:    topology.RadioID(l.Dst),
			Mutual: l.Mutual,
		}
	}
	return topology.New(radios, links)
}
