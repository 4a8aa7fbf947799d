// Package blobstore provides a small storage abstraction for named blobs.
//
// Datasets use a [BlobStore] for their attributes records and the remote
// package uses one as the push/pull target.
//
// # Implementations
//
//   - [LocalStore]: a directory on an internal/fs FileSystem, with atomic
//     writes through a temporary file and rename
//   - [MemoryStore]: in-memory, for tests
//   - s3.Store: Amazon S3 (and compatible) with range reads and multipart uploads
//   - minio.Store: any S3-compatible server through minio-go
//
// Writers must treat blobs as immutable: Put replaces a blob as a whole and a
// reader opened before the replacement keeps seeing the old content.
package blobstore
