package intervals_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/nkoval/go-fit-bridge/internal/domain"
	"github.com/nkoval/go-fit-bridge/internal/intervals"
)

func TestTransfer_ToBucket(t *testing.T) {
	payload := []byte("fit-file-bytes-0123456789")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/activity/act-1/file", r.URL.Path)
		w.Write(payload)
	}))
	defer srv.Close()

	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	c := intervals.NewClient(srv.URL, "i12345", "k", intervals.WithBucket(bucket))

	progress := make(chan domain.Progress, 16)
	path, err := c.Transfer(context.Background(), "act-1", "act-1.fit", progress, &domain.CancelFlag{})
	require.NoError(t, err)
	assert.Equal(t, "act-1.fit", path)

	stored, err := bucket.ReadAll(context.Background(), "act-1.fit")
	require.NoError(t, err)
	assert.Equal(t, payload, stored)

	close(progress)
	var last domain.Progress
	for p := range progress {
		last = p
	}
	assert.Equal(t, int64(len(payload)), last.BytesDownloaded)
	require.NotNil(t, last.TotalBytes)
	assert.Equal(t, int64(len(payload)), *last.TotalBytes)
}

func TestTransfer_ToMemoryBase64(t *testing.T) {
	payload := []byte{0x0e, 0x10, 0x98, 0x07}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	c := intervals.NewClient(srv.URL, "i12345", "k")

	progress := make(chan domain.Progress, 16)
	result, err := c.Transfer(context.Background(), "act-2", "", progress, &domain.CancelFlag{})
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(payload), result)
}

func TestTransfer_CancelledBeforeFirstChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("should never be consumed"))
	}))
	defer srv.Close()

	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	c := intervals.NewClient(srv.URL, "i12345", "k", intervals.WithBucket(bucket))

	flag := &domain.CancelFlag{}
	flag.Set()

	progress := make(chan domain.Progress, 1)
	_, err := c.Transfer(context.Background(), "act-3", "act-3.fit", progress, flag)
	require.ErrorIs(t, err, intervals.ErrCancelled)

	// The aborted write never commits a partial object.
	exists, err := bucket.Exists(context.Background(), "act-3.fit")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTransfer_UpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"unknown activity"}`))
	}))
	defer srv.Close()

	c := intervals.NewClient(srv.URL, "i12345", "k")

	progress := make(chan domain.Progress, 1)
	_, err := c.Transfer(context.Background(), "nope", "", progress, &domain.CancelFlag{})
	require.Error(t, err)
	assert.True(t, intervals.IsNotFound(err))
}

func TestTransfer_NoBucketConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	c := intervals.NewClient(srv.URL, "i12345", "k")

	progress := make(chan domain.Progress, 1)
	_, err := c.Transfer(context.Background(), "act-4", "somewhere.fit", progress, &domain.CancelFlag{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bucket configured")
}

// A full progress channel must never stall the transfer; updates are
// dropped instead.
func TestTransfer_LossyProgress(t *testing.T) {
	payload := make([]byte, 256*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	c := intervals.NewClient(srv.URL, "i12345", "k")

	progress := make(chan domain.Progress, 1) // deliberately tiny
	result, err := c.Transfer(context.Background(), "act-5", "", progress, &domain.CancelFlag{})
	require.NoError(t, err)
	assert.NotEmpty(t, result)
}
