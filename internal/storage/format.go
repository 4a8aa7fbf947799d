package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/episodb/internal/fs"
	"github.com/hupe1980/episodb/internal/hash"
)

const (
	dataFileName  = "episodes.dat"
	indexFileName = "episodes.idx"
	lockFileName  = "LOCK"

	dataMagic  = "EPDBDATA"
	indexMagic = "EPDBINDX"
	fileFormat = 1

	// fileHeaderSize: magic (8) + format (4) + reserved (4).
	fileHeaderSize = 16

	frameHeaderSize = 8
	indexEntrySize  = 24
)

// maxFrameBody bounds record bodies. Larger records are rejected on write
// and reported as corrupt on read.
var maxFrameBody uint32 = 1 << 30

func writeFileHeader(f fs.File, magic string) error {
	header := make([]byte, fileHeaderSize)
	copy(header, magic)
	binary.LittleEndian.PutUint32(header[8:12], fileFormat)
	_, err := f.WriteAt(header, 0)
	return err
}

func checkFileHeader(f fs.File, magic string) error {
	header := make([]byte, fileHeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		return fmt.Errorf("%w: %s header: %w", ErrCorrupt, magic, err)
	}
	if string(header[:8]) != magic {
		return fmt.Errorf("%w: invalid magic %q", ErrCorrupt, header[:8])
	}
	if v := binary.LittleEndian.Uint32(header[8:12]); v != fileFormat {
		return fmt.Errorf("%w: unsupported file format %d", ErrCorrupt, v)
	}
	return nil
}

// indexEntry locates one episode record.
type indexEntry struct {
	Offset int64
	Length uint32
	Steps  uint32
	CRC    uint32
}

func (e indexEntry) encode() []byte {
	b := make([]byte, indexEntrySize)
	binary.LittleEndian.PutUint64(b[0:8], uint64(e.Offset))
	binary.LittleEndian.PutUint32(b[8:12], e.Length)
	binary.LittleEndian.PutUint32(b[12:16], e.Steps)
	binary.LittleEndian.PutUint32(b[16:20], e.CRC)
	binary.LittleEndian.PutUint32(b[20:24], hash.CRC32C(b[0:20]))
	return b
}

func decodeIndexEntry(b []byte) (indexEntry, error) {
	if hash.CRC32C(b[0:20]) != binary.LittleEndian.Uint32(b[20:24]) {
		return indexEntry{}, fmt.Errorf("%w: index entry checksum mismatch", ErrCorrupt)
	}
	return indexEntry{
		Offset: int64(binary.LittleEndian.Uint64(b[0:8])),
		Length: binary.LittleEndian.Uint32(b[8:12]),
		Steps:  binary.LittleEndian.Uint32(b[12:16]),
		CRC:    binary.LittleEndian.Uint32(b[16:20]),
	}, nil
}

func indexOffset(id uint64) int64 {
	return fileHeaderSize + int64(id)*indexEntrySize
}

func readIndexEntry(f fs.File, id uint64) (indexEntry, error) {
	b := make([]byte, indexEntrySize)
	if _, err := f.ReadAt(b, indexOffset(id)); err != nil {
		if errors.Is(err, io.EOF) {
			return indexEntry{}, fmt.Errorf("%w: index entry %d missing", ErrCorrupt, id)
		}
		return indexEntry{}, err
	}
	return decodeIndexEntry(b)
}

// frame wraps body into a record frame.
func frame(body []byte) ([]byte, uint32) {
	crc := hash.CRC32C(body)
	out := make([]byte, frameHeaderSize+len(body))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(body)))
	binary.LittleEndian.PutUint32(out[4:8], crc)
	copy(out[frameHeaderSize:], body)
	return out, crc
}

// readFrame reads the record described by e and returns its verified body.
func readFrame(f fs.File, e indexEntry) ([]byte, error) {
	if e.Length < frameHeaderSize || e.Length-frameHeaderSize > maxFrameBody {
		return nil, fmt.Errorf("%w: frame length %d", ErrCorrupt, e.Length)
	}
	buf := make([]byte, e.Length)
	if _, err := f.ReadAt(buf, e.Offset); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: record at %d truncated", ErrCorrupt, e.Offset)
		}
		return nil, err
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	crc := binary.LittleEndian.Uint32(buf[4:8])
	if n != e.Length-frameHeaderSize || crc != e.CRC {
		return nil, fmt.Errorf("%w: frame header at %d does not match index", ErrCorrupt, e.Offset)
	}
	body := buf[frameHeaderSize:]
	if hash.CRC32C(body) != crc {
		return nil, fmt.Errorf("%w: record checksum mismatch at %d", ErrCorrupt, e.Offset)
	}
	return body, nil
}
