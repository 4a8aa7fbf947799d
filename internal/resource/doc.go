// Package resource limits the resources used by dataset transfers.
//
// A Controller bounds three things:
//
//   - Transfers: the number of blobs copied at once (blocking semaphore)
//   - Buffers: bytes held in memory by in-flight transfers (fail-fast)
//   - Bandwidth: bytes per second read or written (token bucket)
//
// Reader and Writer wrap streams so every byte passes the bandwidth limit:
//
//	rc := resource.NewController(resource.Config{
//	    MaxTransfers: 4,
//	    BytesPerSec:  50 << 20,
//	})
//	if err := rc.AcquireTransfer(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseTransfer()
//	_, err := io.Copy(dst, rc.Reader(ctx, src))
//
// All methods treat a nil *Controller as unlimited.
package resource
