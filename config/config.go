package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	yaml "gopkg.in/yaml.v2"
)

// Config represents the configuration of a monitoring run
type Config struct {
	// Targets are probed in addition to the ones read from TargetsFile.
	Targets     []string `yaml:"targets"`
	TargetsFile string   `yaml:"targets-file" validate:"required"`
	Output      string   `yaml:"output" validate:"required"`

	Ping struct {
		// Interval is nil unless set, zero is a valid value.
		Interval *duration `yaml:"interval" validate:"omitempty,gte=0"`
		Timeout  duration `yaml:"timeout" validate:"gt=0"`
		Count    int      `yaml:"count" validate:"min=1"`
		Mode     string   `yaml:"mode" validate:"omitempty,oneof=auto icmp exec"`
		Size     uint16   `yaml:"payload-size" validate:"lte=65500"`
		Workers  int      `yaml:"workers" validate:"min=1"`
	} `yaml:"ping"`

	DNS struct {
		Nameserver string `yaml:"nameserver" validate:"omitempty,ip|hostname_port"`
	} `yaml:"dns"`

	Tailscale struct {
		Tailnet string `yaml:"tailnet"`
	} `yaml:"tailscale"`

	Metrics struct {
		Textfile string `yaml:"textfile"`
		RTTUnit  string `yaml:"rtt-unit" validate:"omitempty,oneof=ms s both"`
	} `yaml:"metrics"`

	Web struct {
		ListenAddress string `yaml:"listen-address" validate:"omitempty,hostname_port"`
		TelemetryPath string `yaml:"telemetry-path"`
	} `yaml:"web"`
}

type duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler interface.
func (d *duration) UnmarshalYAML(unmashal func(interface{}) error) error {
	var s string
	if err := unmashal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = duration(dur)
	return nil
}

// Duration is a convenience getter.
func (d duration) Duration() time.Duration {
	return time.Duration(d)
}

// Set updates the underlying duration.
func (d *duration) Set(dur time.Duration) {
	*d = duration(dur)
}

// Interval returns ping.interval, or zero if it is unset.
func (c *Config) Interval() time.Duration {
	if c.Ping.Interval == nil {
		return 0
	}
	return c.Ping.Interval.Duration()
}

// SetInterval sets ping.interval.
func (c *Config) SetInterval(d time.Duration) {
	v := duration(d)
	c.Ping.Interval = &v
}

// FromYAML reads YAML from reader and unmarshals it to Config
func FromYAML(r io.Reader) (*Config, error) {
	c := &Config{}
	err := yaml.NewDecoder(r).Decode(c)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration once all sources have been merged.
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return formatValidationErrors(ve)
		}
		return err
	}
	return nil
}

func formatValidationErrors(ve validator.ValidationErrors) error {
	var sb strings.Builder
	sb.WriteString("invalid configuration:")

	for _, fe := range ve {
		fmt.Fprintf(&sb, " field '%s' failed on '%s';", fe.Namespace(), fe.Tag())
	}
	return errors.New(strings.TrimSuffix(sb.String(), ";"))
}
