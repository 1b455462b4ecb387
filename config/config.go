// Package config describes a hwscaler run. Values come from an optional YAML
// file, then HWSCALER_* environment variables, then command-line flags.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/kkyr/fig"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/hwscaler/types"
)

const EnvPrefix = "HWSCALER"

// EnvInputAuthKey is read by the command only, so that the key never
// becomes part of a Config value.
const EnvInputAuthKey = EnvPrefix + "_INPUT_AUTH_KEY"

type Resampler string

const (
	ResamplerLibav  = Resampler("libav")
	ResamplerNative = Resampler("native")
)

type Device struct {
	Type string `fig:"type" default:"none"`
	Name string `fig:"name"`
}

type Config struct {
	Input  string `fig:"input"`
	Output string `fig:"output"`
	Device Device `fig:"device"`

	// Backend overrides the backend derived from the device type.
	Backend string `fig:"backend"`

	// Target is WIDTHxHEIGHT; empty means the frames are passed through unscaled.
	Target string `fig:"target"`

	Resampler    Resampler     `fig:"resampler" default:"libav"`
	FenceTimeout time.Duration `fig:"fence_timeout" default:"10s"`
	LogLevel     string        `fig:"log_level" default:"info"`

	MetricsListenAddr string `fig:"metrics_listen_addr"`
	PprofListenAddr   string `fig:"pprof_listen_addr"`
}

// Load reads the file at path (if any) and the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	opts := []fig.Option{fig.UseEnv(EnvPrefix)}
	if path == "" {
		opts = append(opts, fig.IgnoreFile())
	} else {
		opts = append(opts, fig.File(filepath.Base(path)), fig.Dirs(filepath.Dir(path)))
	}
	if err := fig.Load(&cfg, opts...); err != nil {
		return nil, fmt.Errorf("unable to load the config: %w", err)
	}
	return &cfg, nil
}

// AddFlags registers a flag for every field, defaulting to the current values.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Input, "input", c.Input, "input URL or file to decode")
	fs.StringVarP(&c.Output, "output", "o", c.Output, "file to write the raw planar YUV 4:2:0 frames to")
	fs.StringVar(&c.Device.Type, "device-type", c.Device.Type, "hardware device type: "+deviceTypeNames())
	fs.StringVar(&c.Device.Name, "device-name", c.Device.Name, "hardware device name (e.g. /dev/dri/renderD128)")
	fs.StringVar(&c.Backend, "backend", c.Backend, "accelerator backend override: none, declarative, blit")
	fs.StringVarP(&c.Target, "target", "s", c.Target, "target resolution WIDTHxHEIGHT; empty to keep the source size")
	fs.StringVar((*string)(&c.Resampler), "resampler", string(c.Resampler), "host resampler: libav, native")
	fs.DurationVar(&c.FenceTimeout, "fence-timeout", c.FenceTimeout, "how long to wait for an accelerator blit to complete")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
	fs.StringVar(&c.MetricsListenAddr, "metrics-listen-addr", c.MetricsListenAddr, "an address to serve Prometheus metrics on")
	fs.StringVar(&c.PprofListenAddr, "net-pprof-listen-addr", c.PprofListenAddr, "an address to listen for incoming net/pprof connections")
}

// FromArgs loads the config file named by --config (if any) and applies the
// remaining flags on top of it.
func FromArgs(name string, args []string) (*Config, error) {
	path := configPathFromArgs(args)
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("config", "c", path, "path to a YAML config file")
	cfg.AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 && cfg.Input == "" {
		cfg.Input = fs.Arg(0)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configPathFromArgs(args []string) string {
	fs := pflag.NewFlagSet("", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	path := fs.StringP("config", "c", "", "")
	_ = fs.Parse(args)
	return *path
}

func deviceTypeNames() string {
	var names []string
	for _, t := range types.HardwareDeviceTypes() {
		names = append(names, t.String())
	}
	return strings.Join(names, ", ")
}

func (c *Config) HardwareDeviceType() (types.HardwareDeviceType, error) {
	if c.Device.Type == "" {
		return types.HardwareDeviceTypeNone, nil
	}
	return types.HardwareDeviceTypeFromString(c.Device.Type)
}

// AcceleratorBackend returns the explicit override or the backend the
// device type implies.
func (c *Config) AcceleratorBackend() (types.AcceleratorBackend, error) {
	if c.Backend != "" {
		return types.AcceleratorBackendFromString(c.Backend)
	}
	deviceType, err := c.HardwareDeviceType()
	if err != nil {
		return types.AcceleratorBackendNone, err
	}
	return deviceType.Backend(), nil
}

func (c *Config) TargetResolution() (types.Resolution, error) {
	var res types.Resolution
	if c.Target == "" {
		return res, nil
	}
	if err := res.Parse(c.Target); err != nil {
		return res, err
	}
	if err := res.Validate(); err != nil {
		return res, err
	}
	return res, nil
}

func (c *Config) LoggerLevel() (logger.Level, error) {
	level := logger.LevelInfo
	if c.LogLevel == "" {
		return level, nil
	}
	if err := level.Set(c.LogLevel); err != nil {
		return level, fmt.Errorf("invalid log level '%s': %w", c.LogLevel, err)
	}
	return level, nil
}

func (c *Config) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("input is not set")
	}
	if c.Output == "" {
		return fmt.Errorf("output is not set")
	}
	if _, err := c.HardwareDeviceType(); err != nil {
		return fmt.Errorf("invalid device type: %w", err)
	}
	if _, err := c.AcceleratorBackend(); err != nil {
		return fmt.Errorf("invalid backend: %w", err)
	}
	if _, err := c.TargetResolution(); err != nil {
		return fmt.Errorf("invalid target resolution '%s': %w", c.Target, err)
	}
	switch c.Resampler {
	case ResamplerLibav, ResamplerNative:
	default:
		return fmt.Errorf("unknown resampler '%s'", c.Resampler)
	}
	if c.FenceTimeout < 0 {
		return fmt.Errorf("negative fence timeout %v", c.FenceTimeout)
	}
	if _, err := c.LoggerLevel(); err != nil {
		return err
	}
	return nil
}
