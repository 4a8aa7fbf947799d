package attrs

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hupe1980/episodb/codec"
	"github.com/hupe1980/episodb/internal/hash"
)

const (
	binaryMagic   = 0x45504154 // "EPAT"
	binaryVersion = 1
	headerSize    = 16

	// maxPayload bounds the allocation for a record read from disk.
	maxPayload = 64 << 20
)

// WriteBinary writes the framed record to w.
func (a *Attributes) WriteBinary(w io.Writer) error {
	payload, err := codec.CBOR{}.Marshal(a)
	if err != nil {
		return err
	}

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], binaryMagic)
	binary.LittleEndian.PutUint32(header[4:8], binaryVersion)
	binary.LittleEndian.PutUint32(header[8:12], hash.CRC32C(payload))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadBinary reads and validates a framed record.
func ReadBinary(r io.Reader) (*Attributes, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrCorrupt, err)
	}

	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != binaryMagic {
		return nil, fmt.Errorf("%w: invalid magic %x", ErrCorrupt, magic)
	}
	if version := binary.LittleEndian.Uint32(header[4:8]); version != binaryVersion {
		return nil, fmt.Errorf("%w: unsupported record version %d", ErrCorrupt, version)
	}
	checksum := binary.LittleEndian.Uint32(header[8:12])
	length := binary.LittleEndian.Uint32(header[12:16])
	if length > maxPayload {
		return nil, fmt.Errorf("%w: payload length %d", ErrCorrupt, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %w", ErrCorrupt, err)
	}
	if hash.CRC32C(payload) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	a := &Attributes{}
	if err := (codec.CBOR{}).Unmarshal(payload, a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return a, nil
}
