package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// LZ4 decodes lz4-framed payloads.
type LZ4 struct{}

var _ Decoder = LZ4{}

func (LZ4) Decode(src []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(src)))
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %v", ErrCorrupt, err)
	}
	return out, nil
}

func (LZ4) Name() string { return "lz4" }
