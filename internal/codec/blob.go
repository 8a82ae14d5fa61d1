package codec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Blob payloads carry a one byte flag ahead of the data.
const (
	blobRaw        byte = 0
	blobCompressed byte = 1
)

// compressor is a stateless block compressor.
type compressor interface {
	compress(data []byte) ([]byte, error)
	decompress(data []byte) ([]byte, error)
}

// errIncompressible tells blobCodec to fall back to the raw flag.
var errIncompressible = errors.New("data is incompressible")

// blobCodec stores []byte samples, compressed per record.
type blobCodec struct {
	codecName string
	c         compressor
}

func (b blobCodec) name() string { return b.codecName }

func (b blobCodec) encode(dst []byte, v any) ([]byte, error) {
	data, ok := v.([]byte)
	if !ok {
		return dst, valueTypeError(b.codecName, v)
	}
	if len(data) == 0 {
		return append(dst, blobRaw), nil
	}

	packed, err := b.c.compress(data)
	if errors.Is(err, errIncompressible) || (err == nil && len(packed) >= len(data)) {
		dst = append(dst, blobRaw)
		return append(dst, data...), nil
	}
	if err != nil {
		return dst, fmt.Errorf("%s compression failed: %w", b.codecName, err)
	}
	dst = append(dst, blobCompressed)
	return append(dst, packed...), nil
}

func (b blobCodec) decode(p []byte) (any, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: empty %s value", ErrCorrupt, b.codecName)
	}
	switch p[0] {
	case blobRaw:
		out := make([]byte, len(p)-1)
		copy(out, p[1:])
		return out, nil
	case blobCompressed:
		out, err := b.c.decompress(p[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown %s flag %d", ErrCorrupt, b.codecName, p[0])
	}
}

type s2Compressor struct{}

func (s2Compressor) compress(data []byte) ([]byte, error) {
	return s2.Encode(nil, data), nil
}

func (s2Compressor) decompress(data []byte) ([]byte, error) {
	return s2.Decode(nil, data)
}

// zstd encoders and decoders are expensive to build and safe to reuse for
// EncodeAll/DecodeAll.
var zstdEncoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
		}
		return enc
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
		}
		return dec
	},
}

type zstdCompressor struct{}

func (zstdCompressor) compress(data []byte) ([]byte, error) {
	enc := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(data, nil), nil
}

func (zstdCompressor) decompress(data []byte) ([]byte, error) {
	dec := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(dec)
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}
	return out, nil
}

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

type lz4Compressor struct{}

func (lz4Compressor) compress(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))

	lc := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(lc)

	n, err := lc.CompressBlock(data, dst)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

// decompress grows its buffer until the block fits; block format does not
// record the decoded size.
func (lz4Compressor) decompress(data []byte) ([]byte, error) {
	const maxSize = 128 * 1024 * 1024

	for size := max(len(data)*4, 64); size <= maxSize; size *= 2 {
		buf := make([]byte, size)
		n, err := lz4.UncompressBlock(data, buf)
		if errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	}
	return nil, lz4.ErrInvalidSourceShortBuffer
}
