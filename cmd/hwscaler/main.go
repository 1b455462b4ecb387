package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/hwscaler/accel"
	"github.com/xaionaro-go/hwscaler/accel/emulated"
	"github.com/xaionaro-go/hwscaler/accel/libav"
	"github.com/xaionaro-go/hwscaler/blit"
	"github.com/xaionaro-go/hwscaler/config"
	"github.com/xaionaro-go/hwscaler/decoder"
	"github.com/xaionaro-go/hwscaler/dispatcher"
	"github.com/xaionaro-go/hwscaler/graphresize"
	"github.com/xaionaro-go/hwscaler/logger"
	"github.com/xaionaro-go/hwscaler/monitoring"
	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/hwscaler/scaler"
	"github.com/xaionaro-go/hwscaler/session"
	"github.com/xaionaro-go/hwscaler/sink"
	"github.com/xaionaro-go/hwscaler/types"
	"github.com/xaionaro-go/secret"
)

func main() {
	cfg, err := config.FromArgs(os.Args[0], os.Args[1:])
	switch {
	case errors.Is(err, pflag.ErrHelp):
		os.Exit(0)
	case err != nil:
		fmt.Fprintf(os.Stderr, "%v\n", err)
		fmt.Fprintf(os.Stderr, "syntax: %s [flags] --output <file> <input URL>\n", os.Args[0])
		os.Exit(2)
	}

	loggerLevel, _ := cfg.LoggerLevel()
	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancelFn()
	logger.SetDefault(func() logger.Logger {
		return l
	})
	defer belt.Flush(ctx)

	logger.RedirectAstiav(l)
	logger.Debugf(ctx, "config: %s", spew.Sdump(cfg))

	if err := run(ctx, cfg); err != nil {
		logger.Fatalf(ctx, "%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) (_err error) {
	deviceType, err := cfg.HardwareDeviceType()
	if err != nil {
		return err
	}
	backend, err := cfg.AcceleratorBackend()
	if err != nil {
		return err
	}
	target, err := cfg.TargetResolution()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics, err := dispatcher.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("unable to register the metrics: %w", err)
	}
	if _, err := monitoring.Start(ctx, monitoring.Config{
		MetricsAddr: cfg.MetricsListenAddr,
		PprofAddr:   cfg.PprofListenAddr,
	}, registry); err != nil {
		return err
	}

	decoderCfg := decoder.DefaultConfig()
	decoderCfg.HardwareDeviceType = deviceType
	decoderCfg.HardwareDeviceName = types.HardwareDeviceName(cfg.Device.Name)

	var actx *accel.Context
	switch deviceType {
	case types.HardwareDeviceTypeNone:
	case types.HardwareDeviceTypeEmulated:
		logger.Warnf(ctx, "the emulated accelerator cannot decode; frames will be decoded on the host")
		actx, _, err = emulated.NewContext(ctx, emulated.DefaultConfig())
	default:
		var dev *libav.Device
		actx, dev, err = libav.NewContext(ctx, deviceType, types.HardwareDeviceName(cfg.Device.Name))
		if err == nil {
			decoderCfg.HardwareDeviceContext = dev.HardwareDeviceContext
		}
	}
	if err != nil {
		return fmt.Errorf("unable to initialize the accelerator: %w", err)
	}
	defer func() {
		if err := actx.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close the accelerator context: %v", err)
		}
	}()

	dec, err := decoder.NewFromURL(ctx, cfg.Input, secret.New(os.Getenv(config.EnvInputAuthKey)), decoderCfg)
	if err != nil {
		return fmt.Errorf("unable to open '%s': %w", cfg.Input, err)
	}
	defer dec.Close(ctx)

	out, err := sink.NewFile(cfg.Output)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Errorf(ctx, "unable to close %s: %v", out, err)
		}
	}()

	var resampler dispatcher.Resampler
	switch cfg.Resampler {
	case config.ResamplerNative:
		resampler = scaler.NewNative()
	default:
		resampler = scaler.NewSoftware()
	}

	blitter := blit.New(blit.Config{FenceTimeout: cfg.FenceTimeout})
	graphResizer := graphresize.NewResizer(
		graphresize.LibavFactory{},
		graphresize.ReaderFunc(func(ctx context.Context, frame *types.Frame) (*planar.Frame, error) {
			return blitter.Readback(ctx, frame, actx)
		}),
	)

	d := dispatcher.New(backend, actx, resampler, graphResizer, blitter, out)
	d.Metrics = metrics
	logger.Infof(ctx, "processing '%s' with %s (%s) into '%s' at %s", cfg.Input, d, deviceType, cfg.Output, target)

	_, err = session.New(dec, d, target).Serve(ctx)
	return err
}
