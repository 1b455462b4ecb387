package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/hwscaler/types"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "none", cfg.Device.Type)
	require.Equal(t, ResamplerLibav, cfg.Resampler)
	require.Equal(t, 10*time.Second, cfg.FenceTimeout)

	level, err := cfg.LoggerLevel()
	require.NoError(t, err)
	require.Equal(t, logger.LevelInfo, level)

	backend, err := cfg.AcceleratorBackend()
	require.NoError(t, err)
	require.Equal(t, types.AcceleratorBackendNone, backend)

	target, err := cfg.TargetResolution()
	require.NoError(t, err)
	require.True(t, target.IsZero())
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("HWSCALER_DEVICE_TYPE", "vaapi")
	t.Setenv("HWSCALER_TARGET", "1280x720")

	cfg, err := Load("")
	require.NoError(t, err)

	backend, err := cfg.AcceleratorBackend()
	require.NoError(t, err)
	require.Equal(t, types.AcceleratorBackendDeclarative, backend)

	target, err := cfg.TargetResolution()
	require.NoError(t, err)
	require.Equal(t, types.Resolution{Width: 1280, Height: 720}, target)
}

func TestFromArgs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hwscaler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
input: in.mkv
output: out.yuv
device:
  type: vulkan
target: 640x360
fence_timeout: 5s
`), 0o644))

	cfg, err := FromArgs("hwscaler", []string{"--config", path, "--target", "320x240"})
	require.NoError(t, err)
	require.Equal(t, "in.mkv", cfg.Input)
	require.Equal(t, "out.yuv", cfg.Output)
	require.Equal(t, 5*time.Second, cfg.FenceTimeout)

	backend, err := cfg.AcceleratorBackend()
	require.NoError(t, err)
	require.Equal(t, types.AcceleratorBackendBlit, backend)

	target, err := cfg.TargetResolution()
	require.NoError(t, err)
	require.Equal(t, types.Resolution{Width: 320, Height: 240}, target)

	cfg, err = FromArgs("hwscaler", []string{"-c", path, "--backend", "none", "--device-type", "emulated"})
	require.NoError(t, err)
	backend, err = cfg.AcceleratorBackend()
	require.NoError(t, err)
	require.Equal(t, types.AcceleratorBackendNone, backend)
	deviceType, err := cfg.HardwareDeviceType()
	require.NoError(t, err)
	require.Equal(t, types.HardwareDeviceTypeEmulated, deviceType)
}

func TestFromArgsPositionalInput(t *testing.T) {
	cfg, err := FromArgs("hwscaler", []string{"-o", "out.yuv", "in.mp4"})
	require.NoError(t, err)
	require.Equal(t, "in.mp4", cfg.Input)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Input:        "in.mkv",
			Output:       "out.yuv",
			Device:       Device{Type: "none"},
			Resampler:    ResamplerNative,
			FenceTimeout: time.Second,
			LogLevel:     "debug",
		}
	}
	require.NoError(t, valid().Validate())

	for name, mutate := range map[string]func(*Config){
		"no_input":          func(c *Config) { c.Input = "" },
		"no_output":         func(c *Config) { c.Output = "" },
		"odd_target":        func(c *Config) { c.Target = "641x360" },
		"garbage_target":    func(c *Config) { c.Target = "large" },
		"unknown_device":    func(c *Config) { c.Device.Type = "metal" },
		"unknown_backend":   func(c *Config) { c.Backend = "magic" },
		"unknown_resampler": func(c *Config) { c.Resampler = "lanczos" },
		"negative_timeout":  func(c *Config) { c.FenceTimeout = -time.Second },
		"bad_log_level":     func(c *Config) { c.LogLevel = "loud" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
