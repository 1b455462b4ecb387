// context.go implements the accelerator context that owns a device and its command pool.

package accel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/asticode/go-astikit"
	"github.com/xaionaro-go/hwscaler/logger"
	"github.com/xaionaro-go/xsync"
)

// Context is the bundle of accelerator objects owned by a decode session:
// the device, the queue used for submission and its command pool.
type Context struct {
	Device      Device
	QueueFamily uint32
	Queue       QueueHandle
	CommandPool CommandPoolHandle

	// SubmitLocker serializes command submission against Close.
	SubmitLocker xsync.Mutex

	closer    *astikit.Closer
	closeOnce sync.Once
	closed    bool
}

// NewContext takes ownership of dev. The queue family is the first one able
// to blit, or the first family at all if none is.
func NewContext(
	ctx context.Context,
	dev Device,
) (_ret *Context, _err error) {
	logger.Tracef(ctx, "NewContext(%s)", dev)
	defer func() { logger.Tracef(ctx, "/NewContext(%s): %v", dev, _err) }()

	families := dev.QueueFamilies()
	if len(families) == 0 {
		_ = dev.Close(ctx)
		return nil, fmt.Errorf("device %s exposes no queue families", dev)
	}
	family := families[0]
	for _, candidate := range families {
		if candidate.Capabilities.Has(BlitQueueCapabilities) {
			family = candidate
			break
		}
	}

	closer := astikit.NewCloser()
	closer.AddWithError(func() error { return dev.Close(ctx) })

	queue, err := dev.Queue(family.Index)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("unable to get a queue of %s: %w", family, err)
	}

	pool, err := dev.CreateCommandPool(ctx, family.Index)
	if err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("unable to create a command pool for %s: %w", family, err)
	}
	closer.Add(func() { dev.DestroyCommandPool(ctx, pool) })

	logger.Debugf(ctx, "accelerator context on %s uses %s", dev, family)
	return &Context{
		Device:      dev,
		QueueFamily: family.Index,
		Queue:       queue,
		CommandPool: pool,
		closer:      closer,
	}, nil
}

func (c *Context) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("AcceleratorContext(%s)", c.Device)
}

// IsClosed reports whether the context is unusable. A nil context is closed.
func (c *Context) IsClosed(ctx context.Context) bool {
	if c == nil {
		return true
	}
	return xsync.DoR1(ctx, &c.SubmitLocker, func() bool {
		return c.closed
	})
}

var ErrClosed = errors.New("accelerator context is closed")

// Do runs fn while holding the context open. It returns ErrClosed without
// calling fn if the context is nil or closed.
func (c *Context) Do(ctx context.Context, fn func() error) error {
	if c == nil {
		return ErrClosed
	}
	var err error
	c.SubmitLocker.Do(ctx, func() {
		if c.closed {
			err = ErrClosed
			return
		}
		err = fn()
	})
	return err
}

// Close waits for in-flight submissions, then releases the command pool and the device.
func (c *Context) Close(ctx context.Context) (_err error) {
	if c == nil {
		return nil
	}
	logger.Tracef(ctx, "Close")
	defer func() { logger.Tracef(ctx, "/Close: %v", _err) }()
	c.closeOnce.Do(func() {
		c.SubmitLocker.Do(ctx, func() {
			c.closed = true
			_err = c.closer.Close()
		})
	})
	return
}
