package contentstore

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// codec owns the zstd coders shared across the store. EncodeAll and
// DecodeAll are safe for concurrent use on a single instance.
type codec struct {
	standard *zstd.Encoder
	max      *zstd.Encoder
	decoder  *zstd.Decoder
}

func newCodec() (*codec, error) {
	standard, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}

	max, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, fmt.Errorf("creating max zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &codec{standard: standard, max: max, decoder: decoder}, nil
}

// compress encodes data for the given scheme. CompressionNone passes the
// bytes through untouched.
func (c *codec) compress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		return c.standard.EncodeAll(data, nil), nil
	case CompressionZstdMax:
		return c.max.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("unknown compression scheme %q", compression)
	}
}

// decompress decodes payload bytes stored under the given scheme.
func (c *codec) decompress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil
	case CompressionZstd, CompressionZstdMax:
		out, err := c.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown compression scheme %q", compression)
	}
}

func (c *codec) close() {
	c.standard.Close()
	c.max.Close()
	c.decoder.Close()
}

// compressionForTier returns the at-rest scheme a tier targets. Whether a
// specific payload actually uses it still depends on the ratio check.
func compressionForTier(tier Tier) Compression {
	if tier == TierCold {
		return CompressionZstdMax
	}
	return CompressionZstd
}
