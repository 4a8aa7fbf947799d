// Package compress implements the optional per-record compression of episode
// payloads. Every compressed block is self-describing: its header names the
// algorithm, so a reader never needs the writer's configuration.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies the compression algorithm of a block.
type Type uint8

const (
	// None stores payloads as-is.
	None Type = 0
	// LZ4 is fast block compression.
	LZ4 Type = 1
	// ZSTD trades speed for a better ratio.
	ZSTD Type = 2
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// ParseType parses the names returned by Type.String.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("unknown compression %q", s)
	}
}

// HeaderSize is the size of the block header:
// [Type: 1 byte] [RawSize: 4 bytes] [StoredSize: 4 bytes].
const HeaderSize = 9

var (
	ErrShortBlock   = errors.New("compressed block too small")
	ErrSizeMismatch = errors.New("decompressed size mismatch")
	ErrUnknownType  = errors.New("unknown compression type")
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Compress frames data with a block header, compressing it with t.
// Data that does not shrink by at least 10% is stored uncompressed.
func Compress(data []byte, t Type) ([]byte, error) {
	var packed []byte
	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		packed = buf[:n]
	case ZSTD:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}

	if len(packed) == 0 || float64(len(packed)) > float64(len(data))*0.9 {
		t, packed = None, data
	}

	out := make([]byte, HeaderSize+len(packed))
	out[0] = byte(t)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[5:], uint32(len(packed)))
	copy(out[HeaderSize:], packed)
	return out, nil
}

// Decompress reverses Compress.
func Decompress(block []byte) ([]byte, error) {
	if len(block) < HeaderSize {
		return nil, ErrShortBlock
	}
	t := Type(block[0])
	rawSize := binary.LittleEndian.Uint32(block[1:])
	storedSize := binary.LittleEndian.Uint32(block[5:])
	if uint64(len(block)) < HeaderSize+uint64(storedSize) {
		return nil, ErrShortBlock
	}
	stored := block[HeaderSize : HeaderSize+int(storedSize)]

	switch t {
	case None:
		if storedSize != rawSize {
			return nil, ErrSizeMismatch
		}
		return stored, nil
	case LZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(stored, out)
		if err != nil {
			return nil, err
		}
		if uint32(n) != rawSize {
			return nil, ErrSizeMismatch
		}
		return out, nil
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(stored, make([]byte, 0, rawSize))
		if err != nil {
			return nil, err
		}
		if uint32(len(out)) != rawSize {
			return nil, ErrSizeMismatch
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
}
