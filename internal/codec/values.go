package codec

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

type jsonRaw = json.RawMessage

// valueCodec turns one sample value into bytes and back. Encodings depend
// only on the value so that identical inputs give identical files.
type valueCodec interface {
	name() string
	encode(dst []byte, v any) ([]byte, error)
	decode(b []byte) (any, error)
}

func builtinValueCodecs() []valueCodec {
	return []valueCodec{
		floatCodec{},
		intCodec{},
		boolCodec{},
		textCodec{},
		jsonCodec{},
		blobCodec{codecName: BlobS2, c: s2Compressor{}},
		blobCodec{codecName: BlobZstd, c: zstdCompressor{}},
		blobCodec{codecName: BlobLZ4, c: lz4Compressor{}},
	}
}

func valueTypeError(codec string, v any) error {
	return fmt.Errorf("%w: %s codec cannot store %T", ErrValueType, codec, v)
}

func sizeError(codec string, want, got int) error {
	return fmt.Errorf("%w: %s value is %d bytes, want %d", ErrCorrupt, codec, got, want)
}

type floatCodec struct{}

func (floatCodec) name() string { return Float }

func (floatCodec) encode(dst []byte, v any) ([]byte, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	default:
		return dst, valueTypeError(Float, v)
	}
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(f)), nil
}

func (floatCodec) decode(b []byte) (any, error) {
	if len(b) != 8 {
		return nil, sizeError(Float, 8, len(b))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

type intCodec struct{}

func (intCodec) name() string { return Int }

func (intCodec) encode(dst []byte, v any) ([]byte, error) {
	var i int64
	switch x := v.(type) {
	case int:
		i = int64(x)
	case int8:
		i = int64(x)
	case int16:
		i = int64(x)
	case int32:
		i = int64(x)
	case int64:
		i = x
	case uint8:
		i = int64(x)
	case uint16:
		i = int64(x)
	case uint32:
		i = int64(x)
	default:
		return dst, valueTypeError(Int, v)
	}
	return binary.LittleEndian.AppendUint64(dst, uint64(i)), nil
}

func (intCodec) decode(b []byte) (any, error) {
	if len(b) != 8 {
		return nil, sizeError(Int, 8, len(b))
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

type boolCodec struct{}

func (boolCodec) name() string { return Bool }

func (boolCodec) encode(dst []byte, v any) ([]byte, error) {
	x, ok := v.(bool)
	if !ok {
		return dst, valueTypeError(Bool, v)
	}
	if x {
		return append(dst, 1), nil
	}
	return append(dst, 0), nil
}

func (boolCodec) decode(b []byte) (any, error) {
	if len(b) != 1 {
		return nil, sizeError(Bool, 1, len(b))
	}
	return b[0] != 0, nil
}

type textCodec struct{}

func (textCodec) name() string { return Text }

func (textCodec) encode(dst []byte, v any) ([]byte, error) {
	x, ok := v.(string)
	if !ok {
		return dst, valueTypeError(Text, v)
	}
	return append(dst, x...), nil
}

func (textCodec) decode(b []byte) (any, error) {
	return string(b), nil
}

// jsonCodec stores structured values. encoding/json sorts map keys, which
// keeps the encoding stable across runs.
type jsonCodec struct{}

func (jsonCodec) name() string { return JSON }

func (jsonCodec) encode(dst []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case jsonRaw:
		if !json.Valid(x) {
			return dst, fmt.Errorf("%w: invalid JSON", ErrUnsupportedValue)
		}
		return append(dst, x...), nil
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err != nil {
			return dst, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
		return append(dst, data...), nil
	default:
		return dst, valueTypeError(JSON, v)
	}
}

func (jsonCodec) decode(b []byte) (any, error) {
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return out, nil
}
