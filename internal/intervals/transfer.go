package intervals

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"gocloud.dev/blob"

	"github.com/nkoval/go-fit-bridge/internal/domain"
)

// ErrCancelled is wrapped into the failure a cancelled transfer reports,
// so callers can tell a cancellation-triggered abort from a genuine
// upstream failure by the "download cancelled" message.
var ErrCancelled = errors.New("download cancelled")

const transferChunkSize = 32 * 1024

// WithBucket sets the destination bucket for file transfers. Transfers
// with an empty destination key never touch the bucket.
func WithBucket(b *blob.Bucket) Option { return func(c *Client) { c.bucket = b } }

// Transfer fetches the activity's file from the upstream API. When destKey
// is non-empty the payload is streamed into the configured bucket under
// that key and the key is returned; otherwise the payload is buffered and
// returned base64-encoded.
//
// The cancel flag is polled once per chunk and progress updates are pushed
// with a non-blocking send: a full channel drops the update rather than
// stalling the transfer.
func (c *Client) Transfer(ctx context.Context, activityID, destKey string, progress chan<- domain.Progress, cancelled *domain.CancelFlag) (string, error) {
	resp, err := c.send(ctx, fmt.Sprintf("/api/v1/activity/%s/file", activityID), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errorFromResponse(resp)
	}

	var total *int64
	if resp.ContentLength >= 0 {
		n := resp.ContentLength
		total = &n
	}

	if destKey == "" {
		return c.transferToMemory(resp.Body, total, progress, cancelled)
	}
	if c.bucket == nil {
		return "", fmt.Errorf("destination %q requested but no bucket configured", destKey)
	}
	return c.transferToBucket(ctx, resp.Body, destKey, total, progress, cancelled)
}

func (c *Client) transferToBucket(ctx context.Context, body io.Reader, destKey string, total *int64, progress chan<- domain.Progress, cancelled *domain.CancelFlag) (string, error) {
	// The writer gets its own cancellable context so an aborted transfer
	// discards the partial object instead of committing it on Close.
	writeCtx, abortWrite := context.WithCancel(ctx)
	defer abortWrite()

	w, err := c.bucket.NewWriter(writeCtx, destKey, nil)
	if err != nil {
		return "", fmt.Errorf("open destination %s: %w", destKey, err)
	}

	var downloaded int64
	buf := make([]byte, transferChunkSize)
	for {
		if cancelled.IsSet() {
			abortWrite()
			_ = w.Close()
			return "", ErrCancelled
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				abortWrite()
				_ = w.Close()
				return "", fmt.Errorf("write destination %s: %w", destKey, err)
			}
			downloaded += int64(n)
			pushProgress(progress, downloaded, total)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			abortWrite()
			_ = w.Close()
			return "", fmt.Errorf("read upstream body: %w", readErr)
		}
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("commit destination %s: %w", destKey, err)
	}
	return destKey, nil
}

func (c *Client) transferToMemory(body io.Reader, total *int64, progress chan<- domain.Progress, cancelled *domain.CancelFlag) (string, error) {
	var out bytes.Buffer
	var downloaded int64
	buf := make([]byte, transferChunkSize)
	for {
		if cancelled.IsSet() {
			return "", ErrCancelled
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
			downloaded += int64(n)
			pushProgress(progress, downloaded, total)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("read upstream body: %w", readErr)
		}
	}

	if total == nil {
		// No Content-Length header; report the final size once.
		n := downloaded
		pushProgress(progress, downloaded, &n)
	}
	return base64.StdEncoding.EncodeToString(out.Bytes()), nil
}

func pushProgress(progress chan<- domain.Progress, downloaded int64, total *int64) {
	select {
	case progress <- domain.Progress{BytesDownloaded: downloaded, TotalBytes: total}:
	default: // lossy by contract
	}
}
