package loader

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viewmem/viewmem/arena"
	"github.com/viewmem/viewmem/codec"
	"github.com/viewmem/viewmem/resource"
)

// captureDecoder records the exact bytes handed to Decode.
type captureDecoder struct {
	got []byte
}

func (d *captureDecoder) Decode(src []byte) ([]byte, error) {
	d.got = append([]byte(nil), src...)
	return d.got, nil
}

func (d *captureDecoder) Name() string { return "capture" }

func newTestLoader(t *testing.T, opts ...Option) (*Loader, *arena.Arena) {
	t.Helper()
	buf, err := arena.New(1 << 24)
	require.NoError(t, err)
	t.Cleanup(func() { _ = buf.Close() })
	return New(buf, opts...), buf
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoader_Load(t *testing.T) {
	t.Run("decode sees exactly the file bytes", func(t *testing.T) {
		data := make([]byte, 10000)
		_, _ = rand.New(rand.NewSource(1)).Read(data)
		path := writeFile(t, "res.dat", data)

		dec := &captureDecoder{}
		l, buf := newTestLoader(t, WithDecoder(dec))

		out, err := l.Load(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, data, out)
		assert.Equal(t, data, dec.got)

		// The raw buffer was scratch; the arena is empty again.
		assert.Zero(t, buf.Stats().Used)
	})

	t.Run("zstd payload", func(t *testing.T) {
		payload := bytes.Repeat([]byte("pixels"), 2000)
		var frame bytes.Buffer
		enc, err := zstd.NewWriter(&frame)
		require.NoError(t, err)
		_, _ = enc.Write(payload)
		require.NoError(t, enc.Close())
		path := writeFile(t, "res.zst", frame.Bytes())

		l, _ := newTestLoader(t, WithDecoder(codec.ZSTD{}))
		out, err := l.Load(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, payload, out)
	})

	t.Run("corrupt payload is a decode error", func(t *testing.T) {
		path := writeFile(t, "bad.zst", []byte("definitely not zstd"))

		l, buf := newTestLoader(t, WithDecoder(codec.ZSTD{}))
		_, err := l.Load(context.Background(), path)
		assert.ErrorIs(t, err, codec.ErrCorrupt)
		assert.Zero(t, buf.Stats().Used)
	})

	t.Run("missing file", func(t *testing.T) {
		l, _ := newTestLoader(t)
		_, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "nope.dat"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("empty file", func(t *testing.T) {
		path := writeFile(t, "empty.dat", nil)

		l, _ := newTestLoader(t)
		out, err := l.Load(context.Background(), path)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestLoader_BeginAwait(t *testing.T) {
	t.Run("buffer length matches file size", func(t *testing.T) {
		data := bytes.Repeat([]byte{0x5A}, 10000)
		path := writeFile(t, "res.dat", data)

		ctrl := resource.NewController(resource.Config{BufferBudgetBytes: 1 << 20})
		l, _ := newTestLoader(t, WithController(ctrl))

		pr, err := l.Begin(context.Background(), path)
		require.NoError(t, err)

		raw, err := pr.Await(context.Background())
		require.NoError(t, err)
		assert.Len(t, raw, 10000)
		assert.Equal(t, data, raw)
		assert.Equal(t, int64(10000), ctrl.BufferUsage())

		pr.Release()
		assert.Zero(t, ctrl.BufferUsage())
		pr.Release() // idempotent
	})

	t.Run("await twice returns the same result", func(t *testing.T) {
		path := writeFile(t, "res.dat", []byte("stable"))

		l, _ := newTestLoader(t)
		pr, err := l.Begin(context.Background(), path)
		require.NoError(t, err)
		defer pr.Release()

		first, err := pr.Await(context.Background())
		require.NoError(t, err)
		second, err := pr.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestLoader_Faults(t *testing.T) {
	t.Run("read failure mid-file", func(t *testing.T) {
		path := writeFile(t, "flaky.dat", bytes.Repeat([]byte{1}, 4096))

		ffs := NewFaultyFS(nil)
		ffs.AddRule("flaky", Fault{FailAfterBytes: 1000})

		l, buf := newTestLoader(t, WithFileSystem(ffs))
		_, err := l.Load(context.Background(), path)
		require.Error(t, err)
		assert.Zero(t, buf.Stats().Used)
	})

	t.Run("open failure releases the read slot", func(t *testing.T) {
		ffs := NewFaultyFS(nil)
		ffs.AddRule("gone", Fault{FailOnOpen: true})

		ctrl := resource.NewController(resource.Config{MaxInflightReads: 1})
		l, _ := newTestLoader(t, WithFileSystem(ffs), WithController(ctrl))

		_, err := l.Begin(context.Background(), "gone.dat")
		require.Error(t, err)

		// The single read slot must be free again.
		path := writeFile(t, "ok.dat", []byte("fine"))
		pr, err := l.Begin(context.Background(), path)
		require.NoError(t, err)
		pr.Release()
	})
}

func TestLoader_Budget(t *testing.T) {
	path := writeFile(t, "big.dat", bytes.Repeat([]byte{7}, 200))

	ctrl := resource.NewController(resource.Config{BufferBudgetBytes: 100})
	l, _ := newTestLoader(t, WithController(ctrl))

	_, err := l.Begin(context.Background(), path)
	assert.ErrorIs(t, err, resource.ErrBudgetExceeded)
	assert.Zero(t, ctrl.BufferUsage())
}

func TestLoader_TryBegin(t *testing.T) {
	small := writeFile(t, "small.dat", bytes.Repeat([]byte{1}, 60))
	other := writeFile(t, "other.dat", bytes.Repeat([]byte{2}, 60))

	t.Run("no buffer budget", func(t *testing.T) {
		ctrl := resource.NewController(resource.Config{
			BufferBudgetBytes: 100,
			MaxInflightReads:  4,
		})
		l, buf := newTestLoader(t, WithController(ctrl))

		scope := buf.Begin()
		defer scope.End()

		pr, err := l.TryBegin(context.Background(), small)
		require.NoError(t, err)
		defer pr.Release()

		_, err = l.TryBegin(context.Background(), other)
		assert.ErrorIs(t, err, ErrBusy)
	})

	t.Run("no read slot", func(t *testing.T) {
		ctrl := resource.NewController(resource.Config{MaxInflightReads: 1})
		l, buf := newTestLoader(t, WithController(ctrl))

		require.NoError(t, ctrl.AcquireRead(context.Background()))
		_, err := l.TryBegin(context.Background(), small)
		assert.ErrorIs(t, err, ErrBusy)
		ctrl.ReleaseRead()

		scope := buf.Begin()
		defer scope.End()

		pr, err := l.TryBegin(context.Background(), small)
		require.NoError(t, err)
		defer pr.Release()

		raw, err := pr.Await(context.Background())
		require.NoError(t, err)
		assert.Len(t, raw, 60)
	})
}

func TestLoader_ArenaExhausted(t *testing.T) {
	buf, err := arena.New(4096)
	require.NoError(t, err)
	defer buf.Close()

	path := writeFile(t, "big.dat", bytes.Repeat([]byte{7}, 100000))

	l := New(buf)
	_, err = l.Load(context.Background(), path)
	require.Error(t, err)
	assert.Zero(t, buf.Stats().Used)
}

func TestLoader_ContextCanceled(t *testing.T) {
	path := writeFile(t, "res.dat", []byte("data"))

	l, _ := newTestLoader(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Begin(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoader_MultipleInFlight(t *testing.T) {
	// Several reads may be outstanding at once; completions are collected
	// in any order and buffers released LIFO so the arena reclaims them.
	paths := make([]string, 3)
	for i := range paths {
		paths[i] = writeFile(t, "res.dat", bytes.Repeat([]byte{byte(i + 1)}, 1024*(i+1)))
	}

	ctrl := resource.NewController(resource.Config{MaxInflightReads: 3})
	l, buf := newTestLoader(t, WithController(ctrl))

	scope := buf.Begin()
	pending := make([]*PendingRead, len(paths))
	for i, p := range paths {
		pr, err := l.Begin(context.Background(), p)
		require.NoError(t, err)
		pending[i] = pr
	}

	for i, pr := range pending {
		raw, err := pr.Await(context.Background())
		require.NoError(t, err)
		assert.Len(t, raw, 1024*(i+1))
		assert.Equal(t, byte(i+1), raw[0])
	}

	for i := len(pending) - 1; i >= 0; i-- {
		pending[i].Release()
	}
	scope.End()
	assert.Zero(t, buf.Stats().Used)
}
