// Package decoder opens a media input with libav and decodes its first video
// stream, optionally on a hardware device.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/hwscaler/accel/libav"
	"github.com/xaionaro-go/hwscaler/logger"
	"github.com/xaionaro-go/hwscaler/types"
	"github.com/xaionaro-go/secret"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/unsafetools"
)

const (
	DefaultFramesPoolSize = 20
	vvcThreadCount        = 4
)

type Config struct {
	HardwareDeviceType types.HardwareDeviceType
	HardwareDeviceName types.HardwareDeviceName

	// HardwareDeviceContext is reused instead of opening a new device
	// when set. The decoder does not free it.
	HardwareDeviceContext *astiav.HardwareDeviceContext

	FramesPoolSize int

	// ThreadCount overrides the codec's thread count. VVC defaults to 4.
	ThreadCount typing.Optional[int]
}

func DefaultConfig() Config {
	return Config{
		FramesPoolSize: DefaultFramesPoolSize,
	}
}

type Decoder struct {
	URL                   string
	FormatContext         *astiav.FormatContext
	Stream                *astiav.Stream
	CodecContext          *astiav.CodecContext
	HardwareDeviceContext *astiav.HardwareDeviceContext
	HardwareFramesContext *astiav.HardwareFramesContext

	hardwarePixelFormat astiav.PixelFormat
	packet              *astiav.Packet
	frame               *astiav.Frame
	closer              *astikit.Closer
	inputEOF            bool
	packetPending       bool
}

// NewFromURL opens the input and prepares a decoder for its first video
// stream. authKey is appended to url when opening and is never logged.
func NewFromURL(
	ctx context.Context,
	url string,
	authKey secret.String,
	cfg Config,
) (_ret *Decoder, _err error) {
	logger.Tracef(ctx, "NewFromURL(%s, %s)", url, cfg.HardwareDeviceType)
	defer func() { logger.Tracef(ctx, "/NewFromURL(%s, %s): %v", url, cfg.HardwareDeviceType, _err) }()

	if cfg.FramesPoolSize <= 0 {
		cfg.FramesPoolSize = DefaultFramesPoolSize
	}

	d := &Decoder{
		URL:    url,
		closer: astikit.NewCloser(),
	}
	defer func() {
		if _err != nil {
			_ = d.closer.Close()
		}
	}()

	if err := d.openInput(ctx, authKey); err != nil {
		return nil, types.ErrContextInitFailed{Stage: "open-input", Err: err}
	}
	if err := d.openDecoder(ctx, cfg); err != nil {
		return nil, types.ErrContextInitFailed{Stage: "open-decoder", Err: err}
	}

	d.packet = astiav.AllocPacket()
	d.closer.Add(d.packet.Free)
	d.frame = astiav.AllocFrame()
	d.closer.Add(d.frame.Free)
	return d, nil
}

func (d *Decoder) openInput(ctx context.Context, authKey secret.String) error {
	d.FormatContext = astiav.AllocFormatContext()
	if d.FormatContext == nil {
		return fmt.Errorf("unable to allocate a format context")
	}
	d.closer.Add(d.FormatContext.Free)

	if err := d.FormatContext.OpenInput(d.URL+authKey.Get(), nil, nil); err != nil {
		if authKey.Get() != "" {
			return fmt.Errorf("unable to open input by URL '%s/<HIDDEN>': %w", d.URL, err)
		}
		return fmt.Errorf("unable to open input by URL '%s': %w", d.URL, err)
	}
	d.closer.Add(d.FormatContext.CloseInput)

	if err := d.FormatContext.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("unable to get stream info: %w", err)
	}

	for _, stream := range d.FormatContext.Streams() {
		logger.Tracef(ctx, "input stream #%d: %s", stream.Index(), spew.Sdump(unsafetools.FieldByNameInValue(reflect.ValueOf(stream.CodecParameters()), "c").Elem().Elem().Interface()))
		if stream.CodecParameters().MediaType() != astiav.MediaTypeVideo {
			continue
		}
		d.Stream = stream
		logger.Debugf(ctx, "using input stream #%d (%s)", stream.Index(), stream.CodecParameters().CodecID())
		return nil
	}
	return fmt.Errorf("no video stream in '%s'", d.URL)
}

func (d *Decoder) openDecoder(ctx context.Context, cfg Config) error {
	codecParameters := d.Stream.CodecParameters()
	codec := astiav.FindDecoder(codecParameters.CodecID())
	if codec == nil {
		return fmt.Errorf("unable to find a decoder for '%s'", codecParameters.CodecID())
	}
	ctx = belt.WithField(ctx, "codec", codec.Name())

	d.CodecContext = astiav.AllocCodecContext(codec)
	if d.CodecContext == nil {
		return fmt.Errorf("unable to allocate a codec context")
	}
	d.closer.Add(d.CodecContext.Free)
	d.closer.Add(func() {
		if d.HardwareFramesContext != nil {
			d.HardwareFramesContext.Free()
			d.HardwareFramesContext = nil
		}
	})

	if err := codecParameters.ToCodecContext(d.CodecContext); err != nil {
		return fmt.Errorf("unable to copy the codec parameters: %w", err)
	}
	d.CodecContext.SetTimeBase(d.Stream.TimeBase())

	threadCount := cfg.ThreadCount
	if !threadCount.IsSet() && codec.Name() == "vvc" {
		threadCount = typing.Opt(vvcThreadCount)
	}
	if threadCount.IsSet() {
		logger.Debugf(ctx, "thread count: %d", threadCount.Get())
		d.CodecContext.SetThreadCount(threadCount.Get())
	}

	switch cfg.HardwareDeviceType {
	case types.HardwareDeviceTypeNone, types.HardwareDeviceTypeEmulated:
		logger.Debugf(ctx, "decoding on the host")
	default:
		if err := d.initHardware(ctx, codec, cfg); err != nil {
			return fmt.Errorf("unable to initialize hardware decoding: %w", err)
		}
	}

	if err := d.CodecContext.Open(codec, nil); err != nil {
		return fmt.Errorf("unable to open codec context: %w", err)
	}
	return nil
}

func (d *Decoder) String() string {
	return fmt.Sprintf("Decoder(%s)", d.URL)
}

// NextFrame returns the next decoded frame. It feeds at most one packet to
// the codec per call and returns types.ErrWouldBlock when that was not enough
// to produce a frame.
func (d *Decoder) NextFrame(
	ctx context.Context,
) (_ret *types.Frame, _err error) {
	logger.Tracef(ctx, "NextFrame")
	defer func() { logger.Tracef(ctx, "/NextFrame: %s %v", _ret, _err) }()

	err := d.CodecContext.ReceiveFrame(d.frame)
	switch {
	case err == nil:
		defer d.frame.Unref()
		return libav.ToFrame(d.frame, d.Stream.TimeBase(), d.HardwareFramesContext, d.surfaceFormat())
	case errors.Is(err, astiav.ErrEof):
		return nil, io.EOF
	case errors.Is(err, astiav.ErrEagain):
	default:
		return nil, fmt.Errorf("unable to receive a frame: %w", err)
	}

	if d.inputEOF {
		return nil, io.EOF
	}

	if !d.packetPending {
		err = d.FormatContext.ReadFrame(d.packet)
		switch {
		case err == nil:
		case errors.Is(err, astiav.ErrEof), errors.Is(err, astiav.ErrEio):
			d.inputEOF = true
			return nil, io.EOF
		default:
			return nil, fmt.Errorf("unable to read a packet: %w", err)
		}
		if d.packet.StreamIndex() != d.Stream.Index() {
			d.packet.Unref()
			return nil, types.ErrWouldBlock
		}
	}

	sendErr := d.CodecContext.SendPacket(d.packet)
	disposition, err := disposePacket(sendErr)
	d.packetPending = disposition == packetKept
	if !d.packetPending {
		defer d.packet.Unref()
	}
	switch disposition {
	case packetKept:
		logger.Debugf(ctx, "the codec is full, keeping the packet (pts:%d) for the next call", d.packet.Pts())
	case packetSkipped:
		logger.Warnf(ctx, "skipping a corrupted packet (pts:%d): %v", d.packet.Pts(), sendErr)
	}
	if err != nil {
		return nil, err
	}
	return nil, types.ErrWouldBlock
}

// packetDisposition is what happens to a packet after it was offered to the codec.
type packetDisposition int

const (
	packetConsumed = packetDisposition(iota)
	// packetKept means the codec has to be drained before it takes the packet.
	packetKept
	packetSkipped
)

func disposePacket(err error) (packetDisposition, error) {
	switch {
	case err == nil:
		return packetConsumed, nil
	case errors.Is(err, astiav.ErrEagain):
		return packetKept, nil
	case errors.Is(err, astiav.ErrInvaliddata):
		return packetSkipped, nil
	default:
		return packetConsumed, fmt.Errorf("unable to send a packet: %w", err)
	}
}

// Flush signals the end of input to the codec; the buffered frames are then
// returned by NextFrame.
func (d *Decoder) Flush(
	ctx context.Context,
) (_err error) {
	logger.Tracef(ctx, "Flush")
	defer func() { logger.Tracef(ctx, "/Flush: %v", _err) }()

	d.inputEOF = true
	err := d.CodecContext.SendPacket(nil)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, astiav.ErrEof):
		return nil // already flushed
	default:
		return fmt.Errorf("unable to send the flush request: %w", err)
	}
}

func (d *Decoder) Close(ctx context.Context) error {
	logger.Debugf(ctx, "closing %s", d)
	return d.closer.Close()
}
