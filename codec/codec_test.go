package codec

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var payload = bytes.Repeat([]byte("viewmem resource payload "), 100)

func TestRaw(t *testing.T) {
	src := []byte("hello")
	out, err := Raw{}.Decode(src)
	require.NoError(t, err)
	assert.Equal(t, src, out)

	// The output must not alias the caller-owned input buffer.
	src[0] = 'X'
	assert.Equal(t, byte('h'), out[0])
}

func TestZSTD(t *testing.T) {
	t.Run("decodes a zstd frame", func(t *testing.T) {
		var buf bytes.Buffer
		enc, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		_, err = enc.Write(payload)
		require.NoError(t, err)
		require.NoError(t, enc.Close())

		out, err := ZSTD{}.Decode(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, payload, out)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ZSTD{}.Decode([]byte("not a zstd frame"))
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestLZ4(t *testing.T) {
	t.Run("decodes an lz4 frame", func(t *testing.T) {
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		_, err := w.Write(payload)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		out, err := LZ4{}.Decode(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, payload, out)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := LZ4{}.Decode([]byte("not an lz4 frame"))
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestByName(t *testing.T) {
	for _, name := range []string{"raw", "zstd", "lz4"} {
		d, ok := ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, d.Name())
	}

	_, ok := ByName("brotli")
	assert.False(t, ok)
}
