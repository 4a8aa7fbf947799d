// Package hash provides the CRC32-Castagnoli checksum used by every on-disk
// structure of a dataset: record frames, index entries and attribute records.
//
//	checksum := hash.CRC32C(data)
//
// For streaming input:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
package hash
