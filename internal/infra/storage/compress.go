package storage

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ContentEncodingZstd is the Content-Encoding value for zstd objects.
const ContentEncodingZstd = "zstd"

// EncodeAll on a shared encoder is safe for concurrent use.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(256<<20))
)

// CompressZstd compresses data in one shot.
func CompressZstd(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/4))
}

// DecompressZstd reverses CompressZstd.
func DecompressZstd(data []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}
