// hardware.go negotiates hardware decoding with the codec.

package decoder

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/hwscaler/accel/libav"
	"github.com/xaionaro-go/hwscaler/logger"
	"github.com/xaionaro-go/hwscaler/planar"
	"github.com/xaionaro-go/hwscaler/types"
)

// hardwareSoftwarePixelFormat is the host layout of the decoder's surfaces.
const hardwareSoftwarePixelFormat = astiav.PixelFormatYuv420P

// hardwareConfig is the part of astiav.CodecHardwareConfig the decoder cares about.
type hardwareConfig struct {
	PixelFormat astiav.PixelFormat
	DeviceType  types.HardwareDeviceType
	DeviceCtx   bool
}

func hardwareConfigs(codec *astiav.Codec) []hardwareConfig {
	var result []hardwareConfig
	for _, cfg := range codec.HardwareConfigs() {
		result = append(result, hardwareConfig{
			PixelFormat: cfg.PixelFormat(),
			DeviceType:  types.HardwareDeviceType(cfg.HardwareDeviceType()),
			DeviceCtx:   cfg.MethodFlags().Has(astiav.CodecHardwareConfigMethodFlagHwDeviceCtx),
		})
	}
	return result
}

// selectHardwarePixelFormat returns the pixel format of the first
// configuration that supports the device-context method for deviceType.
func selectHardwarePixelFormat(
	configs []hardwareConfig,
	deviceType types.HardwareDeviceType,
) (astiav.PixelFormat, error) {
	for _, cfg := range configs {
		if cfg.DeviceType != deviceType {
			continue
		}
		if !cfg.DeviceCtx {
			continue
		}
		return cfg.PixelFormat, nil
	}
	return astiav.PixelFormatNone, fmt.Errorf("hardware device type '%s' is not supported by the decoder", deviceType)
}

func (d *Decoder) initHardware(
	ctx context.Context,
	codec *astiav.Codec,
	cfg Config,
) (_err error) {
	logger.Tracef(ctx, "initHardware(%s, '%s')", cfg.HardwareDeviceType, cfg.HardwareDeviceName)
	defer func() {
		logger.Tracef(ctx, "/initHardware(%s, '%s'): %v", cfg.HardwareDeviceType, cfg.HardwareDeviceName, _err)
	}()

	hwPixFmt, err := selectHardwarePixelFormat(hardwareConfigs(codec), cfg.HardwareDeviceType)
	if err != nil {
		return err
	}
	d.hardwarePixelFormat = hwPixFmt

	d.HardwareDeviceContext = cfg.HardwareDeviceContext
	if d.HardwareDeviceContext == nil {
		d.HardwareDeviceContext, err = astiav.CreateHardwareDeviceContext(
			astiav.HardwareDeviceType(cfg.HardwareDeviceType),
			string(cfg.HardwareDeviceName),
			nil,
			0,
		)
		if err != nil {
			return fmt.Errorf("unable to create hardware (%s:%s) device context: %w", cfg.HardwareDeviceType, cfg.HardwareDeviceName, err)
		}
		d.closer.Add(d.HardwareDeviceContext.Free)
	} else {
		logger.Debugf(ctx, "reusing the hardware device context of the accelerator")
	}
	d.CodecContext.SetHardwareDeviceContext(d.HardwareDeviceContext)

	d.CodecContext.SetPixelFormatCallback(func(pfs []astiav.PixelFormat) astiav.PixelFormat {
		for _, pf := range pfs {
			if pf != d.hardwarePixelFormat {
				continue
			}
			if err := d.initHardwareFramesContext(ctx, cfg.FramesPoolSize); err != nil {
				logger.Errorf(ctx, "unable to initialize the hardware frames context: %v", err)
				return astiav.PixelFormatNone
			}
			return pf
		}

		logger.Errorf(ctx, "unable to find appropriate pixel format among %v", pfs)
		return astiav.PixelFormatNone
	})
	return nil
}

// initHardwareFramesContext is called on every format negotiation, so the
// pool follows resolution changes of the stream.
func (d *Decoder) initHardwareFramesContext(
	ctx context.Context,
	poolSize int,
) (_err error) {
	width, height := d.CodecContext.Width(), d.CodecContext.Height()
	logger.Tracef(ctx, "initHardwareFramesContext(%dx%d, %d)", width, height, poolSize)
	defer func() { logger.Tracef(ctx, "/initHardwareFramesContext(%dx%d, %d): %v", width, height, poolSize, _err) }()

	framesCtx := astiav.AllocHardwareFramesContext(d.HardwareDeviceContext)
	if framesCtx == nil {
		return fmt.Errorf("unable to allocate a hardware frames context")
	}
	framesCtx.SetHardwarePixelFormat(d.hardwarePixelFormat)
	framesCtx.SetSoftwarePixelFormat(hardwareSoftwarePixelFormat)
	framesCtx.SetWidth(width)
	framesCtx.SetHeight(height)
	framesCtx.SetInitialPoolSize(poolSize)
	if err := framesCtx.Initialize(); err != nil {
		framesCtx.Free()
		return fmt.Errorf("unable to initialize the hardware frames context: %w", err)
	}
	d.CodecContext.SetHardwareFramesContext(framesCtx)

	if d.HardwareFramesContext != nil {
		d.HardwareFramesContext.Free()
	}
	d.HardwareFramesContext = framesCtx
	return nil
}

// surfaceFormat describes the frames of the pool set up by initHardwareFramesContext.
func (d *Decoder) surfaceFormat() libav.SurfaceFormat {
	layout, _ := planar.LayoutFromPixelFormat(libav.PixelFormatFromAstiav(hardwareSoftwarePixelFormat))
	return libav.SurfaceFormat{
		Hardware: libav.PixelFormatFromAstiav(d.hardwarePixelFormat),
		Software: layout,
	}
}
