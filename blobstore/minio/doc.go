// Package minio provides a blobstore.BlobStore backed by the MinIO client.
//
// It works with MinIO and other S3-compatible servers (Ceph, Garage,
// SeaweedFS) without pulling in the AWS SDK credential chain:
//
//	store, err := minio.NewFromConfig(ctx, minio.Config{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	    Bucket:    "datasets",
//	})
//	_, err = remote.Push(ctx, store, localDir, "pointmaze-umaze-v0")
package minio
