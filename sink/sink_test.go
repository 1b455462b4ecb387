package sink

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/hwscaler/planar"
)

func TestWriter(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	w := NewWriter(&buf)

	f := planar.Alloc(4, 2)
	f.Y[0], f.U[0], f.V[0] = 1, 2, 3
	require.NoError(t, w.WritePlanarFrame(ctx, f))
	require.NoError(t, w.WritePlanarFrame(ctx, f))
	require.Equal(t, append(f.Bytes(), f.Bytes()...), buf.Bytes())
	require.Equal(t, uint64(24), w.BytesWritten.Load())

	bad := &planar.Frame{Width: 4, Height: 2, Y: make([]byte, 3)}
	require.Error(t, w.WritePlanarFrame(ctx, bad))
	require.NoError(t, w.Close())
}

func TestFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.yuv")
	w, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, w.WritePlanarFrame(ctx, planar.Alloc(32, 32)))
	require.NoError(t, w.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, b, 1536)
}

func TestMemoryAndDiscard(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	d := &Discard{}
	for i := 0; i < 3; i++ {
		f := planar.Alloc(2, 2)
		require.NoError(t, m.WritePlanarFrame(ctx, f))
		require.NoError(t, d.WritePlanarFrame(ctx, f))
	}
	require.Len(t, m.Frames(ctx), 3)
	require.Equal(t, uint64(3), d.Frames.Load())
	require.Equal(t, uint64(18), d.Bytes.Load())
}
