// Package attrs persists the root attributes of a dataset backend.
//
// # Binary Format
//
//	Header (16 bytes):
//	  Magic    (4 bytes) - 0x45504154 ("EPAT")
//	  Version  (4 bytes) - record format version (currently 1)
//	  Checksum (4 bytes) - CRC32C of payload
//	  Length   (4 bytes) - payload length in bytes
//
//	Payload: CBOR encoding of [Attributes].
//
// # Commit Protocol
//
// Save writes the new record to ATTRS-NNNNNN.bin, then replaces CURRENT with
// that file name. Both writes go through blobstore.BlobStore.Put, which is
// atomic on every implementation, so CURRENT always names a complete record.
// A crash between the two steps leaves an unreferenced ATTRS file that the
// next Prune removes.
package attrs
