// Package codec turns raw resource bytes into decoded payloads.
//
// The loader treats decoding as an opaque capability: it hands a completed
// read buffer to exactly one Decode call and never inspects the result.
// Built-in decoders cover uncompressed payloads and the zstd and lz4
// frame formats.
package codec

import "errors"

// ErrCorrupt is returned when a decoder rejects its input. Callers surface
// it as "unsupported or invalid file"; corrupt payloads must never end up
// cached as loaded resources.
var ErrCorrupt = errors.New("codec: corrupt or unsupported payload")

// Decoder decodes a raw byte buffer into a resource payload.
// Implementations must be safe for concurrent use.
type Decoder interface {
	// Decode returns the decoded payload. The input buffer is only valid
	// for the duration of the call; implementations must not retain it.
	Decode(src []byte) ([]byte, error)
	Name() string
}

// Default is the decoder used when none is configured.
var Default Decoder = Raw{}

// ByName returns a built-in decoder by its stable name.
func ByName(name string) (Decoder, bool) {
	switch name {
	case "raw":
		return Raw{}, true
	case "zstd":
		return ZSTD{}, true
	case "lz4":
		return LZ4{}, true
	default:
		return nil, false
	}
}

// Raw passes payloads through unchanged, copying them out of the
// caller-owned buffer.
type Raw struct{}

var _ Decoder = Raw{}

func (Raw) Decode(src []byte) ([]byte, error) {
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

func (Raw) Name() string { return "raw" }
