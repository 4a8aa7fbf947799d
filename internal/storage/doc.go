// Package storage implements the append-only episode backend of a dataset.
//
// # Layout
//
// A backend owns one directory:
//
//	episodes.dat      data file header + framed episode records
//	episodes.idx      index file header + one fixed-width entry per episode id
//	ATTRS-NNNNNN.bin  root attributes record (see internal/attrs)
//	CURRENT           name of the active attributes record
//	LOCK              advisory writer lock (only with Options.WriterLock)
//
// # Records
//
// Each record is a frame:
//
//	Length   (4 bytes) - length of the body
//	Checksum (4 bytes) - CRC32C of the body
//	Body               - compress block holding the CBOR episode payload
//
// The index entry of episode id lives at indexHeaderSize + id*indexEntrySize
// and stores the frame offset, frame length, step count and body checksum.
//
// # Commit
//
// WriteEpisode appends the frame after the last committed record, writes the
// index entry, syncs both files and only then commits the new totals through
// the attributes store. The attributes are the source of truth: bytes past
// the committed region are ignored on open and overwritten by the next write,
// so a failed write never changes what readers observe.
package storage
