// Package s3 provides an Amazon S3 implementation of blobstore.BlobStore.
//
// It is used as a push/pull target for datasets:
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("datasets/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//	_, err = remote.Push(ctx, store, localDir, "cartpole-expert-v0")
//
// Reads use ranged GETs and writes created with Create stream through the
// multipart uploader of aws-sdk-go-v2/feature/s3/manager.
package s3
